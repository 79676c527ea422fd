// Package email 渲染并发送生命周期通知邮件
package email

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"go.uber.org/zap"
)

type Kind string

const (
	KindProposalAccepted Kind = "proposal_accepted"
	KindContractCreated  Kind = "contract_created"
	KindContractSigned   Kind = "contract_signed"
	KindMilestoneFunded  Kind = "milestone_funded"
	KindPaymentReleased  Kind = "payment_released"
)

// Data 模板变量
type Data struct {
	RecipientName  string
	JobTitle       string
	ContractTitle  string
	MilestoneTitle string
	Amount         string
	NetAmount      string
	PlatformFee    string
	Link           string
}

var subjects = map[Kind]string{
	KindProposalAccepted: "Your proposal was accepted",
	KindContractCreated:  "A new contract has been created",
	KindContractSigned:   "Your contract was signed",
	KindMilestoneFunded:  "A milestone has been funded",
	KindPaymentReleased:  "Payment released",
}

const layout = `<!doctype html>
<html><body style="font-family:sans-serif">
<p>Hi {{if .RecipientName}}{{.RecipientName}}{{else}}there{{end}},</p>
{{template "content" .}}
{{if .Link}}<p><a href="{{.Link}}">Open in CareerHub</a></p>{{end}}
</body></html>`

var bodies = map[Kind]string{
	KindProposalAccepted: `<p>Your proposal for <strong>{{.JobTitle}}</strong> was accepted. A contract is ready for you.</p>`,
	KindContractCreated:  `<p>The contract <strong>{{.ContractTitle}}</strong> has been created.</p>`,
	KindContractSigned:   `<p>The contract <strong>{{.ContractTitle}}</strong> was signed by the contractor.</p>`,
	KindMilestoneFunded:  `<p>Milestone <strong>{{.MilestoneTitle}}</strong> on {{.ContractTitle}} is funded with {{.Amount}}. You can start working.</p>`,
	KindPaymentReleased:  `<p>{{.NetAmount}} has been released for milestone <strong>{{.MilestoneTitle}}</strong> ({{.Amount}} less {{.PlatformFee}} platform fee).</p>`,
}

// Transport 投递一封 HTML 邮件
type Transport interface {
	Deliver(ctx context.Context, to, subject, html string) error
}

type Mailer struct {
	transport Transport
	templates map[Kind]*template.Template
	logger    *zap.Logger
}

func NewMailer(transport Transport, logger *zap.Logger) (*Mailer, error) {
	m := &Mailer{transport: transport, templates: make(map[Kind]*template.Template), logger: logger}
	for kind, body := range bodies {
		tmpl, err := template.New(string(kind)).Parse(layout)
		if err != nil {
			return nil, err
		}
		if _, err := tmpl.New("content").Parse(body); err != nil {
			return nil, fmt.Errorf("parse %s template: %w", kind, err)
		}
		m.templates[kind] = tmpl
	}
	return m, nil
}

// Render 返回主题与 HTML 正文
func (m *Mailer) Render(kind Kind, data Data) (string, string, error) {
	tmpl, ok := m.templates[kind]
	if !ok {
		return "", "", fmt.Errorf("unknown email kind %q", kind)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", kind, err)
	}
	return subjects[kind], buf.String(), nil
}

func (m *Mailer) Send(ctx context.Context, kind Kind, to string, data Data) error {
	subject, html, err := m.Render(kind, data)
	if err != nil {
		return err
	}
	if err := m.transport.Deliver(ctx, to, subject, html); err != nil {
		return fmt.Errorf("deliver %s email: %w", kind, err)
	}
	m.logger.Debug("Email sent", zap.String("kind", string(kind)), zap.String("to", to))
	return nil
}

func (m *Mailer) SendProposalAccepted(ctx context.Context, to string, data Data) error {
	return m.Send(ctx, KindProposalAccepted, to, data)
}

func (m *Mailer) SendContractCreated(ctx context.Context, to string, data Data) error {
	return m.Send(ctx, KindContractCreated, to, data)
}

func (m *Mailer) SendContractSigned(ctx context.Context, to string, data Data) error {
	return m.Send(ctx, KindContractSigned, to, data)
}

func (m *Mailer) SendMilestoneFunded(ctx context.Context, to string, data Data) error {
	return m.Send(ctx, KindMilestoneFunded, to, data)
}

func (m *Mailer) SendPaymentReleased(ctx context.Context, to string, data Data) error {
	return m.Send(ctx, KindPaymentReleased, to, data)
}
