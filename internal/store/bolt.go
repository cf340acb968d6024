package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"zigbee-bridge/internal/codec"
)

var (
	bucketDevices   = []byte("devices")
	bucketEndpoints = []byte("endpoints")
	bucketLocal     = []byte("local")
	keyLocalDevice  = []byte("device")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketDevices, bucketEndpoints, bucketLocal} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveDevice(dev *Device) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put([]byte(dev.EUI64), data)
	})
}

func (s *BoltStore) GetDevice(eui64 string) (*Device, error) {
	var dev Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data := b.Get([]byte(eui64))
		if data == nil {
			return fmt.Errorf("device %s: %w", eui64, ErrNotFound)
		}
		return json.Unmarshal(data, &dev)
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *BoltStore) DeleteDevice(eui64 string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		return b.Delete([]byte(eui64))
	})
}

// ListDevices returns devices ordered by EUI64.
func (s *BoltStore) ListDevices() ([]*Device, error) {
	var devices []*Device
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return nil // no bucket = no devices
		}
		devices = make([]*Device, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var dev Device
			if err := json.Unmarshal(v, &dev); err != nil {
				return err
			}
			devices = append(devices, &dev)
			return nil
		})
	})
	return devices, err
}

func (s *BoltStore) UpdateDevice(eui64 string, fn func(dev *Device) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDevices)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketDevices)
		}
		data := b.Get([]byte(eui64))
		if data == nil {
			return fmt.Errorf("device %s: %w", eui64, ErrNotFound)
		}
		var dev Device
		if err := json.Unmarshal(data, &dev); err != nil {
			return err
		}
		if err := fn(&dev); err != nil {
			return err
		}
		data, err := json.Marshal(&dev)
		if err != nil {
			return err
		}
		return b.Put([]byte(eui64), data)
	})
}

// endpointKey orders endpoints numerically under ForEach.
func endpointKey(id int32) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

func (s *BoltStore) SaveEndpoint(ep codec.EndpointDoc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEndpoints)
		}
		data, err := json.Marshal(ep)
		if err != nil {
			return err
		}
		return b.Put(endpointKey(ep.EndpointID), data)
	})
}

func (s *BoltStore) ListEndpoints() ([]codec.EndpointDoc, error) {
	var eps []codec.EndpointDoc
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEndpoints)
		if b == nil {
			return nil
		}
		eps = make([]codec.EndpointDoc, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var ep codec.EndpointDoc
			if err := json.Unmarshal(v, &ep); err != nil {
				return err
			}
			eps = append(eps, ep)
			return nil
		})
	})
	return eps, err
}

func (s *BoltStore) SaveLocalDevice(dev *codec.DeviceDoc) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocal)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLocal)
		}
		data, err := json.Marshal(dev)
		if err != nil {
			return err
		}
		return b.Put(keyLocalDevice, data)
	})
}

func (s *BoltStore) GetLocalDevice() (*codec.DeviceDoc, error) {
	var dev codec.DeviceDoc
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketLocal)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketLocal)
		}
		data := b.Get(keyLocalDevice)
		if data == nil {
			return fmt.Errorf("local device: %w", ErrNotFound)
		}
		return json.Unmarshal(data, &dev)
	})
	if err != nil {
		return nil, err
	}
	return &dev, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
