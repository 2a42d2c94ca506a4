package email

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gitshopapp/storefront/internal/models"
)

type OrderConfirmation struct {
	OrderID      string
	CustomerName string
	OrderDate    string
	Items        []ConfirmationItem
	Total        string
}

type ConfirmationItem struct {
	Name      string
	Variant   string
	Quantity  int64
	LineTotal string
}

// NewOrderConfirmation flattens an order into template data.
func NewOrderConfirmation(order *models.Order) *OrderConfirmation {
	info := &OrderConfirmation{
		OrderID:      order.ID.String(),
		CustomerName: order.Customer,
		OrderDate:    order.CreatedAt.Format("January 2, 2006"),
		Total:        order.Bill.StringFixed(2),
	}
	if order.CreatedAt.IsZero() {
		info.OrderDate = time.Now().Format("January 2, 2006")
	}
	for _, item := range order.Items {
		info.Items = append(info.Items, ConfirmationItem{
			Name:      item.Name,
			Variant:   item.Size + " / " + item.Color,
			Quantity:  item.Quantity,
			LineTotal: item.Price.Mul(decimal.NewFromInt(item.Quantity)).StringFixed(2),
		})
	}
	return info
}

var (
	confirmationText = texttemplate.Must(texttemplate.New("order_confirmation_text").Parse(orderConfirmationText))
	confirmationHTML = htmltemplate.Must(htmltemplate.New("order_confirmation_html").Parse(orderConfirmationHTML))
)

func RenderOrderConfirmation(to string, info *OrderConfirmation) (*Email, error) {
	var textBuf, htmlBuf bytes.Buffer
	if err := confirmationText.Execute(&textBuf, info); err != nil {
		return nil, fmt.Errorf("failed to render text template: %w", err)
	}
	if err := confirmationHTML.Execute(&htmlBuf, info); err != nil {
		return nil, fmt.Errorf("failed to render HTML template: %w", err)
	}
	return &Email{
		To:      to,
		Subject: fmt.Sprintf("Order Confirmed - %s", info.OrderID),
		Text:    textBuf.String(),
		HTML:    htmlBuf.String(),
	}, nil
}

// SendOrderConfirmation is a no-op when p is nil or the order has no email.
func SendOrderConfirmation(ctx context.Context, p Provider, order *models.Order) error {
	if p == nil || order == nil || order.CustomerEmail == "" {
		return nil
	}
	msg, err := RenderOrderConfirmation(order.CustomerEmail, NewOrderConfirmation(order))
	if err != nil {
		return err
	}
	return p.SendEmail(ctx, msg)
}

const orderConfirmationText = `Thank you for your order{{if .CustomerName}}, {{.CustomerName}}{{end}}!

Order: {{.OrderID}}
Date: {{.OrderDate}}

Items:
{{range .Items}}- {{.Name}} ({{.Variant}}) x{{.Quantity}} - {{.LineTotal}}
{{end}}
Total paid: {{.Total}}

We'll let you know when your order ships.
`

const orderConfirmationHTML = `<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <title>Order Confirmation</title>
  <style>
    body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
    .header { background: #111827; color: white; padding: 20px; text-align: center; border-radius: 8px 8px 0 0; }
    .items { width: 100%; border-collapse: collapse; margin: 15px 0; }
    .items th, .items td { text-align: left; padding: 8px; border-bottom: 1px solid #e5e7eb; }
    .total { font-size: 18px; font-weight: bold; text-align: right; }
  </style>
</head>
<body>
  <div class="header">
    <h1>Order Confirmed</h1>
    <p>Thank you{{if .CustomerName}}, {{.CustomerName}}{{end}}!</p>
  </div>
  <p><strong>Order:</strong> {{.OrderID}}<br><strong>Date:</strong> {{.OrderDate}}</p>
  <table class="items">
    <thead><tr><th>Item</th><th>Qty</th><th>Price</th></tr></thead>
    <tbody>
      {{range .Items}}<tr><td>{{.Name}}<br><small>{{.Variant}}</small></td><td>{{.Quantity}}</td><td>{{.LineTotal}}</td></tr>
      {{end}}
    </tbody>
  </table>
  <p class="total">Total paid: {{.Total}}</p>
  <p>We'll let you know when your order ships.</p>
</body>
</html>
`
