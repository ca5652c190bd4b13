// Package flasher runs the write and read loops: waiting for tags, flashing
// UID-stamped URLs, and reporting results.
package flasher

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/openstickers/nfc-flasher/internal/journal"
	"github.com/openstickers/nfc-flasher/internal/logging"
	"github.com/openstickers/nfc-flasher/internal/ndef"
	"github.com/openstickers/nfc-flasher/internal/tag"
	"github.com/openstickers/nfc-flasher/internal/transport"
)

// Broadcaster receives tag events for connected agent clients. Satisfied by
// api.WSHub; nil means no agent surface.
type Broadcaster interface {
	BroadcastEvent(eventType string, payload any)
}

// Options configure a run.
type Options struct {
	URL       string // write mode: base URL the tag UID is appended to
	Clipboard bool   // read mode: copy the recovered URL to the clipboard
	Journal   *journal.Journal
	Hub       Broadcaster
	Out       io.Writer
}

// Flasher drives one reader's tag loop.
type Flasher struct {
	monitor *tag.Monitor
	opts    Options
	scans   int
}

// New creates a flasher over an existing monitor.
func New(monitor *tag.Monitor, opts Options) *Flasher {
	if opts.Out == nil {
		opts.Out = io.Discard
	}
	return &Flasher{monitor: monitor, opts: opts}
}

// Scans returns the number of tags successfully processed this run.
func (f *Flasher) Scans() int {
	return f.scans
}

// AppendUID adds the tag UID as a query parameter, starting the query string
// if the base URL does not have one yet.
func AppendUID(baseURL, uid string) string {
	if strings.Contains(baseURL, "?") {
		return baseURL + "&uid=" + uid
	}
	return baseURL + "?uid=" + uid
}

// Flash runs the write loop until ctx is cancelled. Per-tag failures are
// logged and the loop resumes with the next tag.
func (f *Flasher) Flash(ctx context.Context) error {
	logging.Info(logging.CatSystem, "Write mode started", map[string]any{
		"url": f.opts.URL,
	})

	for ev := range f.monitor.Events(ctx) {
		switch ev.Kind {
		case tag.EventInserted:
			f.flashTag(ev.Session)
			ev.Session.Close()
		case tag.EventRemoved:
			logging.Debug(logging.CatTag, "Tag removed", nil)
		case tag.EventError:
			logging.Warn(logging.CatTag, "Tag session failed", map[string]any{
				"error": ev.Err.Error(),
			})
		}
	}

	logging.Info(logging.CatSystem, "Write mode stopped", map[string]any{
		"tagsProcessed": f.scans,
	})
	return nil
}

func (f *Flasher) flashTag(s *tag.Session) {
	target := AppendUID(f.opts.URL, s.UID)

	container, pages, err := f.writeURL(s, target)
	if err != nil {
		logging.Error(logging.CatTag, "Flash failed", map[string]any{
			"uid":    s.UID,
			"family": s.Family,
			"error":  err.Error(),
		})
		logging.CaptureError(err, "flash", map[string]any{"uid": s.UID})
		f.record(journal.Entry{Mode: journal.ModeWrite, UID: s.UID, URL: target, Error: err.Error()})
		f.broadcast("flash_error", map[string]any{"uid": s.UID, "error": err.Error()})
		return
	}

	f.scans++
	logging.Info(logging.CatTag, "Tag flashed", map[string]any{
		"uid":    s.UID,
		"family": s.Family,
		"url":    target,
		"bytes":  len(container),
		"pages":  pages,
	})
	fmt.Fprintln(f.opts.Out, target)

	f.record(journal.Entry{Mode: journal.ModeWrite, UID: s.UID, URL: target, Bytes: len(container), Pages: pages})
	f.broadcast("tag_flashed", map[string]any{"uid": s.UID, "url": target})
}

// writeURL encodes the URL and writes the container from page 4. The capacity
// check runs before any page is touched.
func (f *Flasher) writeURL(s *tag.Session, target string) ([]byte, int, error) {
	cc, err := tag.ReadCapability(s.Card())
	if err != nil {
		return nil, 0, err
	}

	record, err := ndef.EncodeURI(target)
	if err != nil {
		return nil, 0, err
	}
	if len(record) > cc.MaxMessageBytes() {
		return nil, 0, fmt.Errorf("%w: message %d bytes, %d available", tag.ErrCapacity, len(record), cc.MaxMessageBytes())
	}
	container := ndef.TLVEncode(record)

	pio := tag.NewPageIO(s.Card(), cc.UserPages())
	if err := pio.CheckCapacity(len(container)); err != nil {
		return nil, 0, err
	}
	if err := pio.WriteBuffer(tag.FirstUserPage, container); err != nil {
		return nil, 0, err
	}

	pages := (len(container) + transport.PageSize - 1) / transport.PageSize
	return container, pages, nil
}

// Read runs the read loop until ctx is cancelled.
func (f *Flasher) Read(ctx context.Context) error {
	logging.Info(logging.CatSystem, "Read mode started", nil)

	for ev := range f.monitor.Events(ctx) {
		switch ev.Kind {
		case tag.EventInserted:
			f.readTag(ev.Session)
			ev.Session.Close()
		case tag.EventRemoved:
			logging.Debug(logging.CatTag, "Tag removed", nil)
		case tag.EventError:
			logging.Warn(logging.CatTag, "Tag session failed", map[string]any{
				"error": ev.Err.Error(),
			})
		}
	}

	logging.Info(logging.CatSystem, "Read mode stopped", map[string]any{
		"tagsProcessed": f.scans,
	})
	return nil
}

func (f *Flasher) readTag(s *tag.Session) {
	url, err := f.readURL(s)
	if err != nil {
		logging.Error(logging.CatTag, "Read failed", map[string]any{
			"uid":    s.UID,
			"family": s.Family,
			"error":  err.Error(),
		})
		logging.CaptureError(err, "read", map[string]any{"uid": s.UID})
		f.record(journal.Entry{Mode: journal.ModeRead, UID: s.UID, Error: err.Error()})
		f.broadcast("read_error", map[string]any{"uid": s.UID, "error": err.Error()})
		return
	}

	f.scans++
	logging.Info(logging.CatTag, "Tag read", map[string]any{
		"uid":    s.UID,
		"family": s.Family,
		"url":    url,
	})
	fmt.Fprintf(f.opts.Out, "%s\t%s\n", s.UID, url)

	if f.opts.Clipboard {
		if err := clipboard.WriteAll(url); err != nil {
			logging.Warn(logging.CatSystem, "Clipboard copy failed", map[string]any{
				"error": err.Error(),
			})
		}
	}

	f.record(journal.Entry{Mode: journal.ModeRead, UID: s.UID, URL: url})
	f.broadcast("tag_read", map[string]any{"uid": s.UID, "url": url})
}

// readURL reads the data area, discovering the container length from the
// first pages before pulling the rest.
func (f *Flasher) readURL(s *tag.Session) (string, error) {
	cc, err := tag.ReadCapability(s.Card())
	if err != nil {
		return "", err
	}
	pio := tag.NewPageIO(s.Card(), cc.UserPages())

	// Four pages cover the longest possible TLV header plus some payload
	header, err := pio.ReadBuffer(tag.FirstUserPage, 4*transport.PageSize)
	if err != nil {
		return "", err
	}

	total, err := ndef.MessageLength(header)
	if err != nil {
		return "", err
	}
	if total > cc.DataBytes {
		return "", fmt.Errorf("%w: container length %d exceeds data area %d", ndef.ErrMalformed, total, cc.DataBytes)
	}

	container := header
	if total > len(container) {
		container, err = pio.ReadBuffer(tag.FirstUserPage, total)
		if err != nil {
			return "", err
		}
	}
	return ndef.DecodeURIMessage(container)
}

func (f *Flasher) record(e journal.Entry) {
	if f.opts.Journal == nil {
		return
	}
	if _, err := f.opts.Journal.Record(e); err != nil {
		logging.Warn(logging.CatSystem, "Journal write failed", map[string]any{
			"error": err.Error(),
		})
	}
}

func (f *Flasher) broadcast(eventType string, payload any) {
	if f.opts.Hub == nil {
		return
	}
	f.opts.Hub.BroadcastEvent(eventType, payload)
}
