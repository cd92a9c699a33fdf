package checkin

import (
	"encoding/json"
	"fmt"

	"github.com/skip2/go-qrcode"

	"ms-booking/internal/models"
)

// QRSize is the PNG edge length in pixels.
const QRSize = 256

// Payload builds the structured QR content for a player whose booking and slot are loaded.
func (s *TokenSigner) Payload(player *models.Player) (*models.QRPayload, error) {
	if player.Booking == nil || player.Booking.Slot == nil {
		return nil, fmt.Errorf("checkin: player %d loaded without booking slot", player.ID)
	}
	date := player.Booking.Slot.Date

	token, err := s.Issue(player.ID, date)
	if err != nil {
		return nil, err
	}

	return &models.QRPayload{
		PlayerID:  player.ID,
		BookingID: player.BookingID,
		Date:      date,
		Name:      player.Name,
		Email:     player.Email,
		Token:     token,
	}, nil
}

// QRCode encodes the player payload as a PNG.
func (s *TokenSigner) QRCode(player *models.Player) ([]byte, error) {
	payload, err := s.Payload(player)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return qrcode.Encode(string(data), qrcode.Medium, QRSize)
}
