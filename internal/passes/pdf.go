// Package passes renders printable entry passes for a booking's players.
package passes

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/signintech/gopdf"
	"golang.org/x/image/font/gofont/goregular"

	"ms-booking/internal/models"
)

const fontName = "goregular"

// Pass is one player together with the PNG of their check-in QR code.
type Pass struct {
	Player *models.Player
	QRCode []byte
}

type Renderer struct {
	Title string
}

func NewRenderer(title string) *Renderer {
	if title == "" {
		title = "ENTRY PASS"
	}
	return &Renderer{Title: title}
}

// Render writes one A4 page per pass. The booking must have its slot loaded.
func (r *Renderer) Render(booking *models.Booking, passes []Pass) ([]byte, error) {
	if booking.Slot == nil {
		return nil, fmt.Errorf("passes: booking %d loaded without slot", booking.ID)
	}
	if len(passes) == 0 {
		return nil, fmt.Errorf("passes: booking %d has no players", booking.ID)
	}

	pdf := &gopdf.GoPdf{}
	pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})

	if err := pdf.AddTTFFontData(fontName, goregular.TTF); err != nil {
		return nil, fmt.Errorf("failed to load font: %w", err)
	}

	for _, p := range passes {
		pdf.AddPage()
		if err := pdf.SetFont(fontName, "", 14); err != nil {
			return nil, fmt.Errorf("failed to set font: %w", err)
		}

		r.addHeader(pdf)
		pdf.SetY(90)
		addPassInfo(pdf, booking, p.Player)

		if len(p.QRCode) > 0 {
			pdf.SetY(pdf.GetY() + 20)
			if err := addQRCode(pdf, p.QRCode); err != nil {
				return nil, fmt.Errorf("player %d: %w", p.Player.ID, err)
			}
		}

		pdf.SetY(760)
		addFooter(pdf)
	}

	var buf bytes.Buffer
	if err := pdf.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func (r *Renderer) addHeader(pdf *gopdf.GoPdf) {
	_ = pdf.SetFontSize(22)
	pdf.SetX(40)
	pdf.SetY(40)
	_ = pdf.Cell(nil, r.Title)
	_ = pdf.SetFontSize(14)
}

func addPassInfo(pdf *gopdf.GoPdf, booking *models.Booking, player *models.Player) {
	sport := ""
	if booking.Slot.Sport != nil {
		sport = booking.Slot.Sport.Name
	}

	info := []struct {
		Label string
		Value string
	}{
		{"Player", player.Name},
		{"Email", player.Email},
		{"Sport", sport},
		{"Date", booking.Slot.Date},
		{"Time", booking.Slot.StartTime + " - " + booking.Slot.EndTime},
		{"Booking", fmt.Sprintf("#%d", booking.ID)},
		{"Pass", fmt.Sprintf("#%d", player.ID)},
	}

	for _, item := range info {
		pdf.SetX(40)
		_ = pdf.Cell(nil, item.Label+": "+item.Value)
		pdf.Br(22)
	}
}

func addQRCode(pdf *gopdf.GoPdf, qrCode []byte) error {
	img, err := png.Decode(bytes.NewReader(qrCode))
	if err != nil {
		return fmt.Errorf("decode QR code: %w", err)
	}
	return pdf.ImageFrom(img, 40, pdf.GetY(), &gopdf.Rect{W: 200, H: 200})
}

func addFooter(pdf *gopdf.GoPdf) {
	pdf.SetX(40)
	_ = pdf.Cell(nil, "Show this code at the entrance. Valid for one check-in and one check-out on the booked date.")
}
