// Package checkpoint implements saving and loading of serializable
// objects such as network weights and optimizer configurations.
package checkpoint

import (
	"encoding/gob"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Serializable is an object that can be saved/serialized
type Serializable interface {
	gob.GobEncoder
	gob.GobDecoder
}

// Store saves and loads Serializable objects by name. Unforced saves
// may be skipped to limit checkpointing frequency; forced saves are
// always performed.
type Store interface {
	// SaveModel saves obj under name. If forced is false, the Store
	// may skip the save.
	SaveModel(obj Serializable, name string, forced bool) error

	// Load restores the object saved under name into obj
	Load(name string, obj Serializable) error
}

// Disk implements a Store on the filesystem. Each object is written
// to its own zstd-compressed file in the Store's directory. Unforced
// saves of the same name are rate limited to at most one per
// minInterval.
type Disk struct {
	dir         string
	minInterval time.Duration
	lastSave    map[string]time.Time
}

// NewDisk returns a new Disk Store rooted at dir, creating dir if it
// does not exist. Unforced saves of the same name within minInterval
// of each other are skipped.
func NewDisk(dir string, minInterval time.Duration) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("newdisk: could not create directory: %v",
			err)
	}

	return &Disk{
		dir:         dir,
		minInterval: minInterval,
		lastSave:    make(map[string]time.Time),
	}, nil
}

// path returns the file that the object with the given name is
// stored at
func (d *Disk) path(name string) string {
	return filepath.Join(d.dir, name+".bin.zst")
}

// SaveModel saves obj to disk under name
func (d *Disk) SaveModel(obj Serializable, name string, forced bool) error {
	now := time.Now()
	if !forced {
		if last, ok := d.lastSave[name]; ok &&
			now.Sub(last) < d.minInterval {
			return nil
		}
	}

	data, err := obj.GobEncode()
	if err != nil {
		return fmt.Errorf("savemodel: could not encode %v: %v", name, err)
	}

	file, err := os.Create(d.path(name))
	if err != nil {
		return fmt.Errorf("savemodel: could not create save file: %v", err)
	}
	defer file.Close()

	writer, err := zstd.NewWriter(file)
	if err != nil {
		return fmt.Errorf("savemodel: could not create compressor: %v", err)
	}
	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return fmt.Errorf("savemodel: could not write %v: %v", name, err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("savemodel: could not flush %v: %v", name, err)
	}

	d.lastSave[name] = now
	return nil
}

// Load restores the object saved under name into obj in place
func (d *Disk) Load(name string, obj Serializable) error {
	file, err := os.Open(d.path(name))
	if err != nil {
		return fmt.Errorf("load: could not open save file: %v", err)
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return fmt.Errorf("load: could not create decompressor: %v", err)
	}
	defer reader.Close()

	data, err := ioutil.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("load: could not read %v: %v", name, err)
	}

	if err := obj.GobDecode(data); err != nil {
		return fmt.Errorf("load: could not decode %v: %v", name, err)
	}
	return nil
}
