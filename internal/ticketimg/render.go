// Package ticketimg renders downloadable images for sold raffle tickets and
// bundles them into a zip archive.
package ticketimg

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/fogleman/gg"
	"github.com/huynhbt/raffle-go/internal/domain"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

const (
	imgWidth  = 600
	imgHeight = 300
)

type Renderer struct {
	title      string
	titleFace  font.Face
	numberFace font.Face
	detailFace font.Face
}

// NewRenderer prepares the font faces once; Render itself is cheap enough for
// the request path.
func NewRenderer(title string) (*Renderer, error) {
	const op = "ticketimg.NewRenderer"

	regular, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("%s: parse regular font: %w", op, err)
	}

	bold, err := opentype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("%s: parse bold font: %w", op, err)
	}

	titleFace, err := opentype.NewFace(regular, &opentype.FaceOptions{Size: 28, DPI: 72})
	if err != nil {
		return nil, fmt.Errorf("%s: title face: %w", op, err)
	}

	numberFace, err := opentype.NewFace(bold, &opentype.FaceOptions{Size: 96, DPI: 72})
	if err != nil {
		return nil, fmt.Errorf("%s: number face: %w", op, err)
	}

	detailFace, err := opentype.NewFace(regular, &opentype.FaceOptions{Size: 18, DPI: 72})
	if err != nil {
		return nil, fmt.Errorf("%s: detail face: %w", op, err)
	}

	return &Renderer{
		title:      title,
		titleFace:  titleFace,
		numberFace: numberFace,
		detailFace: detailFace,
	}, nil
}

// Render draws a single ticket as PNG. Only sold tickets carry a buyer line;
// enforcement of the sold-only download rule is the caller's job.
func (r *Renderer) Render(t domain.Ticket) ([]byte, error) {
	const op = "ticketimg.Renderer.Render"

	dc := gg.NewContext(imgWidth, imgHeight)

	dc.SetRGB(0.96, 0.95, 0.91)
	dc.Clear()

	dc.SetRGB(0.72, 0.12, 0.12)
	dc.SetLineWidth(6)
	dc.DrawRectangle(8, 8, imgWidth-16, imgHeight-16)
	dc.Stroke()

	dc.SetFontFace(r.titleFace)
	dc.SetRGB(0.2, 0.2, 0.2)
	dc.DrawStringAnchored(r.title, imgWidth/2, 48, 0.5, 0.5)

	dc.SetFontFace(r.numberFace)
	dc.SetRGB(0.72, 0.12, 0.12)
	dc.DrawStringAnchored(fmt.Sprintf("%03d", t.Number), imgWidth/2, imgHeight/2+10, 0.5, 0.5)

	dc.SetFontFace(r.detailFace)
	dc.SetRGB(0.3, 0.3, 0.3)
	if t.BuyerName != nil {
		dc.DrawStringAnchored(*t.BuyerName, imgWidth/2, imgHeight-56, 0.5, 0.5)
	}
	dc.DrawStringAnchored("Giữ vé này để đối chiếu khi quay số", imgWidth/2, imgHeight-30, 0.5, 0.5)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("%s: encode: %w", op, err)
	}

	return buf.Bytes(), nil
}

// Archive renders every ticket and packs the PNGs into one zip.
func (r *Renderer) Archive(tickets []domain.Ticket) ([]byte, error) {
	const op = "ticketimg.Renderer.Archive"

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, t := range tickets {
		img, err := r.Render(t)
		if err != nil {
			return nil, fmt.Errorf("%s: ticket %d: %w", op, t.Number, err)
		}

		w, err := zw.Create(fmt.Sprintf("ticket_%03d.png", t.Number))
		if err != nil {
			return nil, fmt.Errorf("%s: ticket %d: %w", op, t.Number, err)
		}

		if _, err := w.Write(img); err != nil {
			return nil, fmt.Errorf("%s: ticket %d: %w", op, t.Number, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("%s: close: %w", op, err)
	}

	return buf.Bytes(), nil
}
