package review

import (
	"context"
	"fmt"
)

// identifierFields hold direct patient identifiers and are sealed at rest.
var identifierFields = []string{"pt_name", "pt_mrn"}

// FieldCipher seals and opens single field values.
type FieldCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type encryptedStore struct {
	inner  SnapshotStore
	cipher FieldCipher
}

// NewEncryptedStore wraps inner so patient identifiers are encrypted before
// every write and decrypted after every read.
func NewEncryptedStore(inner SnapshotStore, c FieldCipher) SnapshotStore {
	return &encryptedStore{inner: inner, cipher: c}
}

func (s *encryptedStore) Save(ctx context.Context, snap *Snapshot) error {
	sealed, err := s.seal(snap)
	if err != nil {
		return err
	}
	return s.inner.Save(ctx, sealed)
}

func (s *encryptedStore) Load(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.inner.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(snap)
}

func (s *encryptedStore) Delete(ctx context.Context, id string) error {
	return s.inner.Delete(ctx, id)
}

func (s *encryptedStore) List(ctx context.Context, limit, offset int) ([]*Snapshot, int, error) {
	snaps, total, err := s.inner.List(ctx, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	out := make([]*Snapshot, 0, len(snaps))
	for _, snap := range snaps {
		opened, err := s.open(snap)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, opened)
	}
	return out, total, nil
}

func (s *encryptedStore) SaveUndo(ctx context.Context, snap *Snapshot) error {
	sealed, err := s.seal(snap)
	if err != nil {
		return err
	}
	return s.inner.SaveUndo(ctx, sealed)
}

func (s *encryptedStore) LoadUndo(ctx context.Context, id string) (*Snapshot, error) {
	snap, err := s.inner.LoadUndo(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.open(snap)
}

func (s *encryptedStore) DeleteUndo(ctx context.Context, id string) error {
	return s.inner.DeleteUndo(ctx, id)
}

func (s *encryptedStore) seal(snap *Snapshot) (*Snapshot, error) {
	return transformIdentifiers(snap, s.cipher.Encrypt)
}

func (s *encryptedStore) open(snap *Snapshot) (*Snapshot, error) {
	return transformIdentifiers(snap, s.cipher.Decrypt)
}

// transformIdentifiers returns a copy of snap with fn applied to each
// identifier field. snap itself is left untouched.
func transformIdentifiers(snap *Snapshot, fn func(string) (string, error)) (*Snapshot, error) {
	if snap == nil || snap.State == nil {
		return snap, nil
	}
	out := *snap
	out.State = snap.State.Clone()
	for _, name := range identifierFields {
		v, ok := out.State.Get(name)
		if !ok || v.Text == "" {
			continue
		}
		text, err := fn(v.Text)
		if err != nil {
			return nil, fmt.Errorf("snapshot %s field %s: %w", snap.ID, name, err)
		}
		out.State.SetText(name, text, v.Derived)
	}
	return &out, nil
}
