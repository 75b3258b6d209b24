package jeebie

import (
	"bytes"
	"encoding/gob"

	"github.com/pkg/errors"

	"github.com/valerio/jeebie-core/jeebie/cpu"
	"github.com/valerio/jeebie-core/jeebie/memory"
	"github.com/valerio/jeebie-core/jeebie/video"
)

const stateVersion = 1

var (
	// ErrStateVersion is returned when a save state was written by an incompatible version.
	ErrStateVersion = errors.New("unsupported save state version")
	// ErrStateCartridge is returned when a save state belongs to another cartridge.
	ErrStateCartridge = errors.New("save state belongs to a different cartridge")
)

// snapshot is the gob payload of a save state.
type snapshot struct {
	Version        int
	Title          string
	GlobalChecksum uint16
	HeaderChecksum uint8

	Ticks  uint64
	CPU    cpu.State
	Memory memory.State
	PPU    video.State
}

func (d *DMG) snapshot() snapshot {
	info := d.mem.Cartridge().Info()
	return snapshot{
		Version:        stateVersion,
		Title:          info.Title,
		GlobalChecksum: info.GlobalChecksum,
		HeaderChecksum: info.HeaderChecksum,
		Ticks:          d.ticks,
		CPU:            d.cpu.State(),
		Memory:         d.mem.State(),
		PPU:            d.ppu.State(),
	}
}

// SaveState serializes the whole machine. The result is opaque and only
// meaningful to LoadState with the same cartridge inserted.
func (d *DMG) SaveState() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d.snapshot()); err != nil {
		return nil, errors.Wrap(err, "encoding save state")
	}
	d.logger.Debug("state saved", "bytes", buf.Len(), "frame", d.ppu.Frames())
	return buf.Bytes(), nil
}

// LoadState restores a machine saved by SaveState. On error the running machine
// is left untouched.
func (d *DMG) LoadState(data []byte) error {
	var s snapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return errors.Wrap(err, "decoding save state")
	}
	if s.Version != stateVersion {
		return errors.Wrapf(ErrStateVersion, "got version %d, want %d", s.Version, stateVersion)
	}

	info := d.mem.Cartridge().Info()
	if s.Title != info.Title || s.GlobalChecksum != info.GlobalChecksum || s.HeaderChecksum != info.HeaderChecksum {
		return errors.Wrapf(ErrStateCartridge, "state is for %q, %q is inserted", s.Title, info.Title)
	}
	if err := s.Memory.Validate(); err != nil {
		return errors.Wrap(err, "invalid memory state")
	}
	if err := s.PPU.Validate(); err != nil {
		return errors.Wrap(err, "invalid PPU state")
	}

	backup := d.snapshot()
	if err := d.apply(s); err != nil {
		if rerr := d.apply(backup); rerr != nil {
			d.logger.Error("could not roll back failed state load", "error", rerr)
		}
		return errors.Wrap(err, "loading save state")
	}

	d.logger.Info("state loaded", "title", s.Title, "frame", s.PPU.Frames)
	return nil
}

func (d *DMG) apply(s snapshot) error {
	if err := d.mem.Restore(s.Memory); err != nil {
		return err
	}
	if err := d.ppu.Restore(s.PPU); err != nil {
		return err
	}
	d.cpu.Restore(s.CPU)
	d.ticks = s.Ticks
	return nil
}
