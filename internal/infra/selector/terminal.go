package selector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/charmbracelet/huh"

	"github.com/bryanwahyu/mediscan/internal/domain/media"
)

// Terminal asks for library access and lets the user pick a file with a
// huh file picker.
type Terminal struct {
	Dir        string
	Probe      Prober
	Accessible bool

	mu      sync.Mutex
	granted bool

	// form runners, swapped in tests
	confirm func(ctx context.Context, kind media.Kind) (bool, error)
	pick    func(ctx context.Context, kind media.Kind, dir string) (string, error)
}

var _ media.Selector = (*Terminal)(nil)

func NewTerminal(dir string, probe Prober) *Terminal {
	t := &Terminal{Dir: dir, Probe: probe}
	t.confirm = t.confirmForm
	t.pick = t.pickForm
	return t
}

// Select asks for permission once per Terminal, then runs the picker.
func (t *Terminal) Select(ctx context.Context, req media.SelectRequest) (media.Asset, error) {
	if err := t.permission(ctx, req.Kind); err != nil {
		return media.Asset{}, err
	}

	dir := t.Dir
	if dir == "" {
		dir, _ = os.Getwd()
	}
	path, err := t.pick(ctx, req.Kind, dir)
	if err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return media.Asset{}, media.ErrSelectionCanceled
		}
		return media.Asset{}, fmt.Errorf("file picker: %w", err)
	}
	if path == "" {
		return media.Asset{}, media.ErrSelectionCanceled
	}
	return inspect(ctx, path, req, t.Probe)
}

func (t *Terminal) permission(ctx context.Context, kind media.Kind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.granted {
		return nil
	}
	ok, err := t.confirm(ctx, kind)
	if err != nil && !errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("permission prompt: %w", err)
	}
	if !ok {
		return media.ErrPermissionDenied
	}
	t.granted = true
	return nil
}

func (t *Terminal) confirmForm(ctx context.Context, kind media.Kind) (bool, error) {
	var allow bool
	field := huh.NewConfirm().
		Title(fmt.Sprintf("Allow mediscan to read %s files from this machine?", kind)).
		Description("Selected files are uploaded for analysis.").
		Affirmative("Allow").
		Negative("Deny").
		Value(&allow)
	err := huh.NewForm(huh.NewGroup(field)).
		WithTheme(huh.ThemeCatppuccin()).
		WithAccessible(t.Accessible).
		RunWithContext(ctx)
	return allow, err
}

func (t *Terminal) pickForm(ctx context.Context, kind media.Kind, dir string) (string, error) {
	var path string
	picker := huh.NewFilePicker().
		Title(fmt.Sprintf("Select a %s file", kind)).
		Description("Navigate and select the media to analyze").
		Picking(true).
		CurrentDirectory(dir).
		ShowHidden(false).
		ShowPermissions(false).
		ShowSize(true).
		Height(15).
		AllowedTypes(AllowedTypes(kind)).
		Value(&path)
	err := huh.NewForm(huh.NewGroup(picker)).
		WithTheme(huh.ThemeCatppuccin()).
		WithAccessible(t.Accessible).
		RunWithContext(ctx)
	return path, err
}
