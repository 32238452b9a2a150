// Package livedata publishes the latest reading as a small YAML file for
// consumption by other tools such as a web page.
package livedata

import (
	"os"
	"path/filepath"
	"time"

	"github.com/DaveBerkeley/elster-meter/internal/errors"
	"gopkg.in/yaml.v2"
)

const defaultFilePerm = 0o644

// Status is the content of the live data file.
type Status struct {
	Timestamp time.Time `yaml:"timestamp"`
	LogPath   string    `yaml:"log_path"`
	PowerW    int       `yaml:"power_w"`
	TodayKWh  float64   `yaml:"today_kwh"`
	TotalKWh  float64   `yaml:"total_kwh"`
	Sent      bool      `yaml:"sent"`
}

// Writer replaces the live data file on every Write. A Writer with an
// empty path does nothing.
type Writer struct {
	path string
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Enabled reports whether a file path was configured.
func (w *Writer) Enabled() bool {
	return w.path != ""
}

// Write atomically replaces the file with s.
func (w *Writer) Write(s Status) error {
	if !w.Enabled() {
		return nil
	}

	errFactory := errors.New()

	data, err := yaml.Marshal(s)
	if err != nil {
		return errFactory.Wrap(errors.ErrLiveData, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(w.path), ".livedata-*")
	if err != nil {
		return errFactory.Wrap(errors.ErrLiveData, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrLiveData, err)
	}
	if err := tmp.Chmod(defaultFilePerm); err != nil {
		tmp.Close()
		return errFactory.Wrap(errors.ErrLiveData, err)
	}
	if err := tmp.Close(); err != nil {
		return errFactory.Wrap(errors.ErrLiveData, err)
	}

	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return errFactory.Wrap(errors.ErrLiveData, err)
	}

	return nil
}

// Read loads a live data file written by Write.
func Read(path string) (Status, error) {
	var s Status

	data, err := os.ReadFile(path)
	if err != nil {
		return s, errors.New().Wrap(errors.ErrLiveData, err)
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return s, errors.New().Wrap(errors.ErrLiveData, err)
	}

	return s, nil
}
