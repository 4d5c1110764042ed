package qr

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"ms-admission/internal/models"

	"github.com/skip2/go-qrcode"
)

type Generator struct {
	secret []byte
}

func NewGenerator(secret string) *Generator {
	hashed := sha256.Sum256([]byte(secret)) // normalize to 32 bytes
	return &Generator{secret: hashed[:]}
}

// passPayload is what the door scanner decodes: enough to find the ticket
// and cross-check the code, nothing more.
type passPayload struct {
	TicketID       string `json:"ticket_id"`
	EventID        string `json:"event_id"`
	ValidationCode string `json:"validation_code"`
}

// EncodePayload produces the encrypted string a pass QR carries.
func (g *Generator) EncodePayload(ticket models.Ticket) (string, error) {
	data, err := json.Marshal(passPayload{
		TicketID:       ticket.TicketID,
		EventID:        ticket.EventID,
		ValidationCode: ticket.ValidationCode,
	})
	if err != nil {
		return "", err
	}
	return encryptAES(data, g.secret)
}

// GeneratePass renders the encrypted QR image for an approved ticket.
func (g *Generator) GeneratePass(ticket models.Ticket) ([]byte, error) {
	encrypted, err := g.EncodePayload(ticket)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(encrypted, qrcode.Medium, 256)
}

// DecodePass decrypts a scanned QR payload back into the embedded code.
func (g *Generator) DecodePass(encoded string) (string, error) {
	raw, err := base64.URLEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(raw) < aes.BlockSize {
		return "", errors.New("pass payload too short")
	}

	block, err := aes.NewCipher(g.secret)
	if err != nil {
		return "", err
	}

	iv := raw[:aes.BlockSize]
	data := raw[aes.BlockSize:]
	stream := cipher.NewCFBDecrypter(block, iv)
	stream.XORKeyStream(data, data)

	var payload passPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}
	return payload.ValidationCode, nil
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
