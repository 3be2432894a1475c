// Package templates renders the emails the service sends.
//
// Templates use fixed placeholders replaced literally; this is not a template
// engine and unknown placeholders are left as they are.
package templates

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	cache "github.com/go-pkgz/expirable-cache"
	"github.com/microcosm-cc/bluemonday"
)

const overrideTTL = 5 * time.Minute

// Data fills the placeholders of a template.
type Data struct {
	Email     string
	UserName  string
	AccountID string
	Token     string
	SiteURL   string
	Code      string
	Perm      map[string]bool
}

// Message is a rendered, sanitized email.
type Message struct {
	Subject string
	HTML    string
}

// Source loads operator overrides. A missing object returns domain.ErrNotFound.
type Source interface {
	Get(ctx context.Context, key string) (string, error)
	Put(ctx context.Context, key, body, contentType string) error
}

type Renderer struct {
	source    Source
	policy    *bluemonday.Policy
	overrides cache.Cache
}

// NewRenderer builds a renderer. source may be nil, in which case only the
// built-in templates are used.
func NewRenderer(source Source) (*Renderer, error) {
	c, err := cache.NewCache(cache.MaxKeys(64), cache.TTL(overrideTTL))
	if err != nil {
		return nil, fmt.Errorf("create template cache: %w", err)
	}
	policy := bluemonday.UGCPolicy()
	policy.AllowAttrs("style", "class").Globally()
	return &Renderer{source: source, policy: policy, overrides: c}, nil
}

// Render produces the subject and sanitized HTML body for purpose.
func (r *Renderer) Render(ctx context.Context, purpose string, d Data) (Message, error) {
	tpl, ok := defaults[purpose]
	if !ok {
		return Message{}, fmt.Errorf("no template for purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	tpl = r.override(ctx, purpose, tpl)

	subject := replace(tpl.subject, d, func(s string) string { return s })
	body := replace(tpl.html, d, html.EscapeString)
	return Message{
		Subject: strings.TrimSpace(subject),
		HTML:    r.policy.Sanitize(body),
	}, nil
}

// SaveOverride stores a custom subject and body for purpose.
func (r *Renderer) SaveOverride(ctx context.Context, purpose, subject, body string) error {
	if _, ok := defaults[purpose]; !ok {
		return fmt.Errorf("no template for purpose %q: %w", purpose, domain.ErrBadRequest)
	}
	if r.source == nil {
		return fmt.Errorf("template storage not configured: %w", domain.ErrBadRequest)
	}
	if err := r.source.Put(ctx, objectKey(purpose, "subject"), subject, "text/plain; charset=utf-8"); err != nil {
		return err
	}
	if err := r.source.Put(ctx, objectKey(purpose, "html"), body, "text/html; charset=utf-8"); err != nil {
		return err
	}
	r.overrides.Invalidate(purpose)
	return nil
}

func (r *Renderer) override(ctx context.Context, purpose string, fallback builtin) builtin {
	if r.source == nil {
		return fallback
	}
	if v, ok := r.overrides.Get(purpose); ok {
		if b, ok := v.(builtin); ok {
			return b
		}
	}
	tpl := fallback
	if s, err := r.load(ctx, purpose, "subject"); err == nil {
		tpl.subject = s
	}
	if h, err := r.load(ctx, purpose, "html"); err == nil {
		tpl.html = h
	}
	r.overrides.Set(purpose, tpl, overrideTTL)
	return tpl
}

func (r *Renderer) load(ctx context.Context, purpose, ext string) (string, error) {
	v, err := r.source.Get(ctx, objectKey(purpose, ext))
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		slog.Warn("template override unavailable, using built-in", "purpose", purpose, "part", ext, "err", err)
	}
	return v, err
}

func objectKey(purpose, ext string) string {
	return "templates/" + purpose + "." + ext
}

func replace(tpl string, d Data, escape func(string) string) string {
	pairs := []string{
		"{{ .EmailUSer }}", escape(d.Email),
		"{{ .UserName }}", escape(d.UserName),
		"{{ ._id }}", escape(d.AccountID),
		"{{ .Token }}", escape(d.Token),
		"{{ .SiteURL }}", escape(d.SiteURL),
		"{{ .CodeConfirmation }}", escape(d.Code),
	}
	names := make([]string, 0, len(d.Perm))
	for name := range d.Perm {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		pairs = append(pairs, "{{ .Perm."+name+" }}", strconv.FormatBool(d.Perm[name]))
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}
