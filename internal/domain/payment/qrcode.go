package payment

import (
	"encoding/base64"
	"net/url"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/skip2/go-qrcode"
)

// CodeGenerator renders the scannable code shown to the customer.
type CodeGenerator interface {
	// Generate returns the code image as a data URL.
	Generate(content string) (string, error)
}

// QRGenerator renders PNG QR codes.
type QRGenerator struct {
	Size int
}

func NewQRGenerator() *QRGenerator {
	return &QRGenerator{Size: 256}
}

func (g *QRGenerator) Generate(content string) (string, error) {
	png, err := qrcode.Encode(content, qrcode.Medium, g.Size)
	if err != nil {
		return "", errors.Wrap(err, "encode qr code")
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}

// PayURI builds the wallet deep link encoded into the QR code.
func PayURI(amount decimal.Decimal, recipient, reference string) string {
	q := url.Values{}
	q.Set("amount", amount.StringFixed(2))
	q.Set("name", recipient)
	q.Set("reference", reference)
	return "gcash://pay?" + q.Encode()
}
