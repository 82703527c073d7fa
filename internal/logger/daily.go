package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"pdf-rag/internal/helper"
)

// DailyFile writes to <dir>/<prefix>_YYYYMMDD.log and switches to a new
// file on the first write of a new calendar day.
type DailyFile struct {
	mu     sync.Mutex
	dir    string
	prefix string
	day    string
	file   *os.File
	now    func() time.Time
}

func NewDailyFile(dir, prefix string) (*DailyFile, error) {
	if err := helper.CreateFolder(dir); err != nil {
		return nil, fmt.Errorf("failed to create log dir: %w", err)
	}
	return &DailyFile{dir: dir, prefix: prefix, now: time.Now}, nil
}

func (d *DailyFile) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	day := d.now().Format("20060102")
	if d.file == nil || day != d.day {
		if err := d.open(day); err != nil {
			return 0, err
		}
	}
	return d.file.Write(p)
}

// Path returns the file the next write on the current day goes to.
func (d *DailyFile) Path() string {
	return filepath.Join(d.dir, fmt.Sprintf("%s_%s.log", d.prefix, d.now().Format("20060102")))
}

func (d *DailyFile) open(day string) error {
	if d.file != nil {
		_ = d.file.Close()
		d.file = nil
	}
	name := filepath.Join(d.dir, fmt.Sprintf("%s_%s.log", d.prefix, day))
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	d.file = f
	d.day = day
	return nil
}

func (d *DailyFile) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}
