package templates

import "github.com/go-auth-nosql/internal/domain"

type builtin struct {
	subject string
	html    string
}

var defaults = map[string]builtin{
	domain.PurposeReauthentication: {
		subject: "Confirm it's you",
		html: `<p>Hi {{ .UserName }},</p>
<p>Enter this code to continue: <strong>{{ .CodeConfirmation }}</strong></p>
<p>If you did not request it, you can ignore this email.</p>`,
	},
	domain.PurposeResetPassword: {
		subject: "Reset your password",
		html: `<p>Hi {{ .UserName }},</p>
<p>Your password reset code is <strong>{{ .CodeConfirmation }}</strong>.</p>
<p><a href="{{ .SiteURL }}/reset-password?email={{ .EmailUSer }}">Reset password</a></p>`,
	},
	domain.PurposeChangeEmailCurrent: {
		subject: "Confirm your email change",
		html: `<p>Hi {{ .UserName }},</p>
<p>Someone asked to move this account to a new address. Code for this mailbox: <strong>{{ .CodeConfirmation }}</strong></p>`,
	},
	domain.PurposeChangeEmailNew: {
		subject: "Confirm your new email address",
		html: `<p>Hi {{ .UserName }},</p>
<p>Code for your new address {{ .EmailUSer }}: <strong>{{ .CodeConfirmation }}</strong></p>`,
	},
	domain.PurposeMagicLink: {
		subject: "Your sign-in code",
		html: `<p>Your sign-in code is <strong>{{ .CodeConfirmation }}</strong>.</p>
<p><a href="{{ .SiteURL }}/magic-link?email={{ .EmailUSer }}">Sign in</a></p>`,
	},
	domain.PurposeVerifyRegistration: {
		subject: "Verify your email",
		html: `<p>Welcome {{ .UserName }}!</p>
<p>Your verification code is <strong>{{ .CodeConfirmation }}</strong>.</p>`,
	},
	domain.PurposeInvite: {
		subject: "You have been invited",
		html: `<p>You have been invited to join {{ .SiteURL }}.</p>
<p>Invitation {{ ._id }}, code <strong>{{ .CodeConfirmation }}</strong>.</p>
<p><a href="{{ .SiteURL }}/invites/{{ ._id }}?email={{ .EmailUSer }}">Accept invitation</a></p>`,
	},
}
