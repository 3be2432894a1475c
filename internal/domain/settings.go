package domain

import "time"

// MailSettingsKey is the settings-table key for the SMTP override.
const MailSettingsKey = "mail"

// MailSettings is the operator-editable SMTP configuration. Username and
// Password are sealed before they reach the store.
type MailSettings struct {
	SettingKey string    `json:"-" dynamodbav:"setting_key"`
	Host       string    `json:"host" dynamodbav:"host" validate:"required,hostname|ip"`
	Port       int       `json:"port" dynamodbav:"port" validate:"required,min=1,max=65535"`
	From       string    `json:"from" dynamodbav:"from" validate:"required,email"`
	Username   string    `json:"username,omitempty" dynamodbav:"username"`
	Password   string    `json:"password,omitempty" dynamodbav:"password"`
	TLS        bool      `json:"tls" dynamodbav:"tls"`
	UpdatedAt  time.Time `json:"updated" dynamodbav:"updated_at"`
}

type TemplateOverrideRequest struct {
	Subject string `json:"subject" validate:"required,max=200"`
	HTML    string `json:"html" validate:"required,max=65536"`
}
