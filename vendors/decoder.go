package vendors

import (
	"errors"
	"image"
	"sync"

	"github.com/makiuchi-d/gozxing"
	"github.com/makiuchi-d/gozxing/oned"
	"github.com/makiuchi-d/gozxing/qrcode"
)

// ErrNoCode means the frame was decoded fine but contained no code. It is
// the normal outcome for most camera frames.
var ErrNoCode = errors.New("no code found")

// SupportedInputs selects the scanner's input modes.
type SupportedInputs struct {
	Camera bool `json:"camera"`
	File   bool `json:"file"`
}

// ScannerSettings configure the decoder and the camera surface.
type ScannerSettings struct {
	FPS                int             `json:"fps"`
	ScanRegionSize     int             `json:"qrbox"`
	AspectRatio        float64         `json:"aspectRatio"`
	RememberLastCamera bool            `json:"rememberLastUsedCamera"`
	SupportedInputs    SupportedInputs `json:"supportedScanTypes"`
}

// Decoder finds a QR code or barcode in an image.
type Decoder interface {
	Decode(img image.Image) (string, error)
}

// ZXingDecoder tries QR first, then the common 1D formats.
type ZXingDecoder struct {
	mu      sync.Mutex
	readers []gozxing.Reader
	hints   map[gozxing.DecodeHintType]interface{}
}

func NewZXingDecoder() *ZXingDecoder {
	return &ZXingDecoder{
		readers: []gozxing.Reader{
			qrcode.NewQRCodeReader(),
			oned.NewCode128Reader(),
			oned.NewEAN13Reader(),
			oned.NewCode39Reader(),
		},
		hints: map[gozxing.DecodeHintType]interface{}{
			gozxing.DecodeHintType_TRY_HARDER: true,
		},
	}
}

// Decode returns the payload of the first code found, or ErrNoCode.
func (d *ZXingDecoder) Decode(img image.Image) (string, error) {
	bmp, err := gozxing.NewBinaryBitmapFromImage(img)
	if err != nil {
		return "", err
	}

	// Readers keep per-call state.
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range d.readers {
		res, err := r.Decode(bmp, d.hints)
		if err != nil {
			continue
		}
		if text := res.GetText(); text != "" {
			return text, nil
		}
	}
	return "", ErrNoCode
}
