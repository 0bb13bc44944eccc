package capture

import (
	"errors"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"github.com/ayusman/yavanika/internal/frame"
)

// DeviceSource captures frames from a video device (camera or virtual
// display-capture device) using GoCV.
type DeviceSource struct {
	deviceID int
	mu       sync.Mutex
	capture  *gocv.VideoCapture
	running  bool
	seq      int64
}

// NewDeviceSource creates a source for the given device ID.
func NewDeviceSource(deviceID int) *DeviceSource {
	return &DeviceSource{deviceID: deviceID}
}

// Open opens the device and sets the capture resolution.
func (d *DeviceSource) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.running {
		return nil
	}
	capture, err := gocv.OpenVideoCapture(d.deviceID)
	if err != nil {
		return err
	}
	capture.Set(gocv.VideoCaptureFrameWidth, DefaultWidth)
	capture.Set(gocv.VideoCaptureFrameHeight, DefaultHeight)

	d.capture = capture
	d.running = true
	return nil
}

// Close releases the device.
func (d *DeviceSource) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.capture == nil {
		d.running = false
		return nil
	}
	err := d.capture.Close()
	d.capture = nil
	d.running = false
	return err
}

// Read grabs one frame and copies it out of the Mat so the pipeline
// owns plain bytes with no OpenCV lifetime attached.
func (d *DeviceSource) Read() (*frame.Frame, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.running || d.capture == nil {
		return nil, ErrSourceNotOpen
	}

	mat := gocv.NewMat()
	defer mat.Close()

	if ok := d.capture.Read(&mat); !ok {
		return nil, errors.New("failed to read frame from device")
	}
	if mat.Empty() {
		return nil, errors.New("captured frame is empty")
	}

	pixels := mat.ToBytes()
	out := make([]byte, len(pixels))
	copy(out, pixels)

	d.seq++
	return &frame.Frame{
		Seq:        d.seq,
		CapturedAt: time.Now(),
		Width:      mat.Cols(),
		Height:     mat.Rows(),
		Channels:   mat.Channels(),
		Pixels:     out,
	}, nil
}
