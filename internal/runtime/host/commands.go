package host

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/drblury/codeshot/internal/runtime/envelope"
	errspkg "github.com/drblury/codeshot/internal/runtime/errors"
	loggingpkg "github.com/drblury/codeshot/internal/runtime/logging"
)

// Message types exchanged with the webview.
const (
	TypeReady         envelope.MessageType = "ready"
	TypeUpdateCode    envelope.MessageType = "updateCode"
	TypeAlert         envelope.MessageType = "alert"
	TypeShowMessage   envelope.MessageType = "showMessage"
	TypeCopyImage     envelope.MessageType = "copyImage"
	TypeDownloadImage envelope.MessageType = "downloadImage"
)

// EditorConfig is the editor appearance sent along with the code.
type EditorConfig struct {
	FontFamily    string `json:"fontFamily"`
	FontSize      int    `json:"fontSize"`
	LineHeight    int    `json:"lineHeight"`
	FontLigatures bool   `json:"fontLigatures"`
	ColorTheme    string `json:"colorTheme"`
}

// WithDefaults fills the fields an editor left empty.
func (c EditorConfig) WithDefaults() EditorConfig {
	if c.FontFamily == "" {
		c.FontFamily = "Consolas, monospace"
	}
	if c.FontSize <= 0 {
		c.FontSize = 14
	}
	if c.ColorTheme == "" {
		c.ColorTheme = "Default Dark+"
	}
	return c
}

// CodeSnapshot is the code the webview renders.
type CodeSnapshot struct {
	Code         string       `json:"code"`
	FileName     string       `json:"fileName"`
	LanguageID   string       `json:"languageId"`
	StartLine    int          `json:"startLine"`
	EndLine      int          `json:"endLine"`
	EditorConfig EditorConfig `json:"editorConfig"`
}

// ShowMessage is the payload of showMessage.
type ShowMessage struct {
	Message string `json:"message"`
	IsError bool   `json:"isError"`
}

// CopyImage is the payload of copyImage.
type CopyImage struct {
	DataURL  string `json:"dataUrl"`
	Format   string `json:"format,omitempty"`
	MimeType string `json:"mimeType,omitempty"`
}

// DownloadImage is the payload of downloadImage.
type DownloadImage struct {
	DataURL   string `json:"dataUrl"`
	Filename  string `json:"filename"`
	Format    string `json:"format,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// Ack answers a command sent as a request.
type Ack struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Path  string `json:"path,omitempty"`
}

var imageExtensions = map[string]string{
	"svg":  "svg",
	"png":  "png",
	"jpeg": "jpg",
	"webp": "webp",
}

// ImageExtension maps an export format to a file extension, png when unknown.
func ImageExtension(format string) string {
	if ext, ok := imageExtensions[strings.ToLower(format)]; ok {
		return ext
	}
	return "png"
}

// DecodeDataURL returns the bytes of a base64 data URL. A bare base64 string
// is accepted too.
func DecodeDataURL(dataURL string) ([]byte, error) {
	encoded := dataURL
	if strings.HasPrefix(dataURL, "data:") {
		header, body, ok := strings.Cut(dataURL, ",")
		if !ok || !strings.HasSuffix(header, ";base64") {
			return nil, fmt.Errorf("%w: not base64 encoded", errspkg.ErrInvalidDataURL)
		}
		encoded = body
	}
	if encoded == "" {
		return nil, fmt.Errorf("%w: empty", errspkg.ErrInvalidDataURL)
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", errspkg.ErrInvalidDataURL, err)
	}
	return data, nil
}

func (s *Service) registerBuiltinCommands() {
	s.commands[TypeReady] = s.handleReady
	s.commands[TypeAlert] = s.handleAlert
	s.commands[TypeShowMessage] = s.handleShowMessage
	s.commands[TypeCopyImage] = s.handleCopyImage
	s.commands[TypeDownloadImage] = s.handleDownloadImage
}

// SetCode stores the code answered to ready and pushes it to the webview.
// An empty snapshot is stored but not pushed.
func (s *Service) SetCode(ctx context.Context, snap CodeSnapshot) error {
	snap.EditorConfig = snap.EditorConfig.WithDefaults()
	s.codeMu.Lock()
	s.code = snap
	s.codeMu.Unlock()
	if snap.Code == "" {
		return nil
	}
	return s.Push(ctx, TypeUpdateCode, snap)
}

// Code returns the stored snapshot.
func (s *Service) Code() CodeSnapshot {
	s.codeMu.RLock()
	defer s.codeMu.RUnlock()
	return s.code
}

func (s *Service) handleReady(ctx context.Context, cmd Command) error {
	snap := s.Code()
	if snap.Code == "" {
		return nil
	}
	return s.Reply(ctx, cmd, TypeUpdateCode, snap)
}

func (s *Service) handleAlert(ctx context.Context, cmd Command) error {
	text, err := envelope.DecodeData[string](cmd.Envelope())
	if err != nil {
		return err
	}
	s.notifier.Info(ctx, text)
	return s.acknowledge(ctx, cmd, Ack{OK: true})
}

func (s *Service) handleShowMessage(ctx context.Context, cmd Command) error {
	m, err := envelope.DecodeData[ShowMessage](cmd.Envelope())
	if err != nil {
		return err
	}
	if m.IsError {
		s.notifier.Error(ctx, m.Message)
	} else {
		s.notifier.Info(ctx, m.Message)
	}
	return s.acknowledge(ctx, cmd, Ack{OK: true})
}

func (s *Service) handleCopyImage(ctx context.Context, cmd Command) error {
	req, err := envelope.DecodeData[CopyImage](cmd.Envelope())
	if err == nil {
		err = s.copyImage(ctx, req)
	}
	if err != nil {
		s.notifier.Error(ctx, fmt.Sprintf("Copy failed: %v", err))
		s.Logger.Error("Copy image failed", err, loggingpkg.LogFields{"message_uuid": cmd.UUID})
		return s.acknowledge(ctx, cmd, Ack{Error: err.Error()})
	}
	s.notifier.Info(ctx, "Screenshot copied to clipboard")
	return s.acknowledge(ctx, cmd, Ack{OK: true})
}

func (s *Service) copyImage(ctx context.Context, req CopyImage) error {
	if req.Format == "" {
		req.Format = "png"
	}
	if req.MimeType == "" {
		req.MimeType = "image/png"
	}
	data, err := DecodeDataURL(req.DataURL)
	if err != nil {
		return err
	}
	if strings.EqualFold(req.Format, "svg") {
		return s.clipboard.CopyText(ctx, string(data))
	}
	return s.clipboard.CopyImage(ctx, data, ImageExtension(req.Format), req.MimeType)
}

func (s *Service) handleDownloadImage(ctx context.Context, cmd Command) error {
	req, err := envelope.DecodeData[DownloadImage](cmd.Envelope())
	var path string
	if err == nil {
		path, err = s.downloadImage(ctx, req)
	}
	if err != nil {
		s.notifier.Error(ctx, fmt.Sprintf("Save failed: %v", err))
		s.Logger.Error("Download image failed", err, loggingpkg.LogFields{"message_uuid": cmd.UUID})
		return s.acknowledge(ctx, cmd, Ack{Error: err.Error()})
	}
	s.notifier.Info(ctx, "Screenshot saved")
	return s.acknowledge(ctx, cmd, Ack{OK: true, Path: path})
}

func (s *Service) downloadImage(ctx context.Context, req DownloadImage) (string, error) {
	if req.Extension == "" {
		req.Extension = "png"
	}
	data, err := DecodeDataURL(req.DataURL)
	if err != nil {
		return "", err
	}
	name := req.Filename
	if name == "" {
		name = "codeshot"
	}
	return s.saver.Save(ctx, name+"."+req.Extension, data)
}

// acknowledge replies to cmd when the webview sent it as a request.
func (s *Service) acknowledge(ctx context.Context, cmd Command, ack Ack) error {
	if cmd.Metadata.CorrelationID() == "" {
		return nil
	}
	return s.Reply(ctx, cmd, cmd.Type, ack)
}
