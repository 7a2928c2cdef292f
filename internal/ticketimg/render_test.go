package ticketimg

import (
	"archive/zip"
	"bytes"
	"image/png"
	"testing"

	"github.com/huynhbt/raffle-go/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	r, err := NewRenderer("VÉ SỐ GÂY QUỸ")
	require.NoError(t, err)

	name := "Nguyen Van A"
	img, err := r.Render(domain.Ticket{
		Number:    42,
		Status:    domain.TicketSold,
		BuyerName: &name,
	})
	require.NoError(t, err)

	decoded, err := png.Decode(bytes.NewReader(img))
	require.NoError(t, err)
	assert.Equal(t, 600, decoded.Bounds().Dx())
	assert.Equal(t, 300, decoded.Bounds().Dy())
}

func TestRenderWithoutBuyer(t *testing.T) {
	r, err := NewRenderer("VÉ SỐ GÂY QUỸ")
	require.NoError(t, err)

	img, err := r.Render(domain.Ticket{Number: 7, Status: domain.TicketSold})
	require.NoError(t, err)

	_, err = png.Decode(bytes.NewReader(img))
	assert.NoError(t, err)
}

func TestArchive(t *testing.T) {
	r, err := NewRenderer("VÉ SỐ GÂY QUỸ")
	require.NoError(t, err)

	archive, err := r.Archive([]domain.Ticket{
		{Number: 1, Status: domain.TicketSold},
		{Number: 12, Status: domain.TicketSold},
		{Number: 123, Status: domain.TicketSold},
	})
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	require.Len(t, zr.File, 3)

	names := []string{zr.File[0].Name, zr.File[1].Name, zr.File[2].Name}
	assert.Equal(t, []string{"ticket_001.png", "ticket_012.png", "ticket_123.png"}, names)

	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		_, err = png.Decode(rc)
		rc.Close()
		assert.NoError(t, err, "%s decodes as PNG", f.Name)
	}
}
