// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package notify composes and sends the five e-mail kinds of spec
// section 4.8 over SMTP, and signs the time-limited links they carry.
package notify

import (
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nerc-arf/scops/pkg/log"
)

// Mailer sends e-mail over SMTP and signs links with a shared secret.
type Mailer struct {
	SMTPHost      string
	From          string
	ServerBaseURL string
	JWTSecret     []byte
	ErrorEmail    string
	ErrorBCC      []string
}

// New builds a Mailer from resolved configuration.
func New(smtpHost, serverBaseURL, jwtSecret, errorEmail string, errorBCC []string) *Mailer {
	return &Mailer{
		SMTPHost:      smtpHost,
		From:          "scops@localhost",
		ServerBaseURL: serverBaseURL,
		JWTSecret:     []byte(jwtSecret),
		ErrorEmail:    errorEmail,
		ErrorBCC:      errorBCC,
	}
}

// SignedLink builds <base><path> with a "token" query parameter
// carrying an HMAC-signed, time-limited JWT. validFor of zero means no
// expiry claim is set.
func (m *Mailer) SignedLink(path string, validFor time.Duration, claims map[string]interface{}) (string, error) {
	mapClaims := jwt.MapClaims{"iat": time.Now().Unix()}
	for k, v := range claims {
		mapClaims[k] = v
	}
	if validFor > 0 {
		mapClaims["exp"] = time.Now().Add(validFor).Unix()
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, mapClaims).SignedString(m.JWTSecret)
	if err != nil {
		return "", fmt.Errorf("notify: signing link: %w", err)
	}

	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%s%stoken=%s", m.ServerBaseURL, path, sep, token), nil
}

// send transmits one message to one recipient, opening a fresh
// connection per call: one envelope recipient per connection, looping
// for BCC/error copies.
func (m *Mailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s\r\n", m.From, to, subject, body)
	if err := smtp.SendMail(m.SMTPHost, nil, m.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("notify: sending to %s: %w", to, err)
	}
	return nil
}

// ConfirmEmail sends the initial order-confirmation link. Recipients
// are the user only, no BCC or error cc.
func (m *Mailer) ConfirmEmail(to, configName, project string) error {
	link, err := m.SignedLink(fmt.Sprintf("/processor/confirm/%s", configName), 7*24*time.Hour, map[string]interface{}{
		"project": project,
		"config":  configName,
	})
	if err != nil {
		return err
	}
	link += fmt.Sprintf("&project=%s", project)

	body := fmt.Sprintf("Your SCOPS order %s has been received.\n\nConfirm processing: %s\n\nReference: %s\n", configName, link, configName)
	return m.send(to, "SCOPS: confirm your order", body)
}

// OrderStartedEmail is sent once per order (guarded by the caller via
// status_email_sent) when the submitter begins dispatching lines.
func (m *Mailer) OrderStartedEmail(to, processingID string) error {
	link, err := m.SignedLink(fmt.Sprintf("/status/%s", processingID), 0, map[string]interface{}{"processing_id": processingID})
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Processing of order %s has started.\n\nTrack progress: %s\n", processingID, link)
	return m.send(to, "SCOPS: processing started", body)
}

// StageErrorEmail notifies the operator (configured error address plus
// BCC code list) that a line failed at a given stage.
func (m *Mailer) StageErrorEmail(processingID, line, stage string, cause error) error {
	body := fmt.Sprintf("Line %s of order %s failed at stage %s: %v\n", line, processingID, stage, cause)
	if err := m.send(m.ErrorEmail, fmt.Sprintf("SCOPS: ERROR - %s/%s", processingID, line), body); err != nil {
		return err
	}
	for _, bcc := range m.ErrorBCC {
		if err := m.send(bcc, fmt.Sprintf("SCOPS: ERROR - %s/%s", processingID, line), body); err != nil {
			log.Warnf("notify: bcc %s: %v", bcc, err)
		}
	}
	return nil
}

// DEMCoverageErrorEmail tells the user their declared DEM source does
// not cover the flight and offers a re-upload link scoped to the
// workspace and project.
func (m *Mailer) DEMCoverageErrorEmail(to, workspace, project string) error {
	link, err := m.SignedLink("/dem/reupload", 7*24*time.Hour, map[string]interface{}{
		"workspace": workspace,
		"project":   project,
	})
	if err != nil {
		return err
	}
	body := fmt.Sprintf("The DEM source declared for project %s does not cover this flight.\n\nUpload a replacement DEM: %s\n", project, link)
	return m.send(to, "SCOPS: insufficient DEM coverage", body)
}

// OrderCompleteEmail carries the download link to the master zip.
func (m *Mailer) OrderCompleteEmail(to, processingID, masterZipPath string) error {
	link, err := m.SignedLink(fmt.Sprintf("/download/%s", processingID), 30*24*time.Hour, map[string]interface{}{
		"processing_id": processingID,
		"path":          masterZipPath,
	})
	if err != nil {
		return err
	}
	body := fmt.Sprintf("Order %s is complete.\n\nDownload: %s\n", processingID, link)
	return m.send(to, "SCOPS: order complete", body)
}
