// Package qr issues signed ticket credentials for confirmed orders. The
// payload is AES-encrypted before encoding so a scanned code cannot be forged
// without the service secret.
package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"time"

	"ms-reservations/internal/models"
	"ms-reservations/internal/utils"

	"github.com/skip2/go-qrcode"
)

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// credential is what a scanner decrypts from one code.
type credential struct {
	TicketID string    `json:"ticket_id"`
	OrderID  string    `json:"order_id"`
	EventID  string    `json:"event_id"`
	TierID   string    `json:"tier_id"`
	TierName string    `json:"tier_name"`
	IssuedAt time.Time `json:"issued_at"`
}

// GenerateOrderQRCodes issues one code per purchased unit. Called exactly
// once, when an order transitions to confirmed.
func (g *Generator) GenerateOrderQRCodes(order *models.Order, event *models.Event) ([]models.QRCode, error) {
	issuedAt := time.Now().UTC()
	var codes []models.QRCode

	for _, line := range order.Tickets {
		for i := 0; i < line.Quantity; i++ {
			ticketID := utils.GenerateTicketID()
			payload := credential{
				TicketID: ticketID,
				OrderID:  order.ID,
				EventID:  event.ID,
				TierID:   line.TierID,
				TierName: line.TierName,
				IssuedAt: issuedAt,
			}

			data, err := json.Marshal(payload)
			if err != nil {
				return nil, err
			}
			encrypted, err := encryptAES(data, g.secret)
			if err != nil {
				return nil, err
			}
			png, err := qrcode.Encode(encrypted, qrcode.Medium, 256)
			if err != nil {
				return nil, err
			}

			codes = append(codes, models.QRCode{
				TicketID: ticketID,
				TierID:   line.TierID,
				Code:     png,
				IssuedAt: issuedAt,
			})
		}
	}
	return codes, nil
}

func encryptAES(data []byte, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}

	ciphertext := make([]byte, aes.BlockSize+len(data))
	iv := ciphertext[:aes.BlockSize]

	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", err
	}

	stream := cipher.NewCFBEncrypter(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], data)

	return base64.URLEncoding.EncodeToString(ciphertext), nil
}
