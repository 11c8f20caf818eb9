package rrd

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

var snapshotMagic = [8]byte{'R', 'R', 'D', 'S', 'N', 'A', 'P', '1'}

// WriteFile stores a zstd-compressed snapshot of s at path. The file is
// written to a temporary name in the same directory and renamed into place.
func WriteFile(path string, s *Store) error {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("unable to create snapshot: %v", err)
	}
	tempPath := f.Name()
	defer os.Remove(tempPath)

	if err := func() error {
		defer f.Close()
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		w := bufio.NewWriter(enc)
		if err := s.encode(w); err != nil {
			enc.Close()
			return err
		}
		if err := w.Flush(); err != nil {
			enc.Close()
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
		return f.Sync()
	}(); err != nil {
		return fmt.Errorf("unable to write snapshot %s: %v", path, err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("unable to write snapshot %s: %v", path, err)
	}
	return nil
}

// ReadFile loads a snapshot written by WriteFile.
func ReadFile(path string) (*Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot %s: %v", path, err)
	}
	defer dec.Close()
	s, err := decode(bufio.NewReader(dec))
	if err != nil {
		return nil, fmt.Errorf("unable to read snapshot %s: %v", path, err)
	}
	return s, nil
}

func (s *Store) encode(w io.Writer) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, snapshotMagic[:]...)
	buf = binary.AppendVarint(buf, s.start)
	buf = binary.AppendVarint(buf, s.last)
	buf = binary.AppendUvarint(buf, uint64(s.ring.capacity))
	buf = binary.AppendUvarint(buf, uint64(len(s.sources)))
	for _, ds := range s.sources {
		buf = binary.AppendUvarint(buf, uint64(len(ds.Name)))
		buf = append(buf, ds.Name...)
	}
	buf = binary.AppendUvarint(buf, uint64(s.ring.size))
	if _, err := w.Write(buf); err != nil {
		return err
	}

	prev := s.start
	return s.Each(func(step int64, values []float64) error {
		buf = buf[:0]
		buf = binary.AppendVarint(buf, step-prev)
		for _, v := range values {
			buf = binary.LittleEndian.AppendUint64(buf, math.Float64bits(v))
		}
		prev = step
		_, err := w.Write(buf)
		return err
	})
}

func decode(r *bufio.Reader) (*Store, error) {
	var magic [8]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, err
	}
	if magic != snapshotMagic {
		return nil, fmt.Errorf("not a store snapshot")
	}
	start, err := binary.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	last, err := binary.ReadVarint(r)
	if err != nil {
		return nil, err
	}
	capacity, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	width, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if capacity == 0 || capacity > math.MaxInt32 || width == 0 || width > 1024 {
		return nil, fmt.Errorf("corrupt header: capacity=%d sources=%d", capacity, width)
	}
	sources := make([]DataSource, width)
	for i := range sources {
		n, err := binary.ReadUvarint(r)
		if err != nil {
			return nil, err
		}
		if n > 1024 {
			return nil, fmt.Errorf("corrupt header: data source name length %d", n)
		}
		name := make([]byte, n)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		sources[i].Name = string(name)
	}
	s, err := New(Options{Start: start, Capacity: int(capacity), Sources: sources})
	if err != nil {
		return nil, err
	}
	count, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	if count > capacity {
		return nil, fmt.Errorf("corrupt header: %d samples exceed capacity %d", count, capacity)
	}

	values := make([]float64, width)
	raw := make([]byte, 8*width)
	step := start
	for i := uint64(0); i < count; i++ {
		delta, err := binary.ReadVarint(r)
		if err != nil {
			return nil, err
		}
		if _, err := io.ReadFull(r, raw); err != nil {
			return nil, err
		}
		for j := range values {
			values[j] = math.Float64frombits(binary.LittleEndian.Uint64(raw[j*8:]))
		}
		if delta <= 0 {
			return nil, fmt.Errorf("corrupt snapshot: sample %d does not advance the step", i)
		}
		step += delta
		s.ring.push(step, values)
	}
	if count > 0 && step != last {
		return nil, fmt.Errorf("corrupt snapshot: last step %d does not match header %d", step, last)
	}
	s.last = last
	return s, nil
}
