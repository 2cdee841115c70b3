package file

import (
	"context"
	"errors"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/metadata"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

type staticKeyProvider map[string][]string

func (s staticKeyProvider) PrivateKeys(name string) []string { return s[name] }

func buildSamplePlaintext() *tree.DecryptedTree {
	m := tree.NewMap[value.Value]()
	m.Set("username", tree.Leaf(value.String("alice")))
	m.Set("retries", tree.Leaf(value.Integer(3)))
	return tree.MapNode(m)
}

func newAgeFixture(t *testing.T) (*integration.Registry, string) {
	t.Helper()
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity failed: %v", err)
	}
	keys := staticKeyProvider{integration.AgeName: {identity.String()}}
	reg := integration.NewRegistry(integration.NewAge(keys))
	return reg, identity.Recipient().String()
}

func TestBuildEncryptDecryptRoundTrip(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}}}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	decrypted, err := encrypted.Decrypt(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !tree.Equal(decrypted.Map, plaintext) {
		t.Errorf("decrypted map does not match original plaintext")
	}
}

func TestBuildMissingKeys(t *testing.T) {
	reg, _ := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	_, err := Build(context.Background(), cipher, hasher, reg, buildSamplePlaintext(), BuilderConfig{}, time.Now())
	if !errors.Is(err, ErrMissingKeys) {
		t.Errorf("expected ErrMissingKeys, got %v", err)
	}
}

func TestBuildUnknownIntegration(t *testing.T) {
	reg, _ := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: "nope", KeyIDs: []string{"x"}}}}
	_, err := Build(context.Background(), cipher, hasher, reg, buildSamplePlaintext(), cfg, time.Now())
	if !errors.Is(err, ErrUnknownIntegration) {
		t.Errorf("expected ErrUnknownIntegration, got %v", err)
	}
}

func TestByteStableReEncryptionOfUnchangedPlaintext(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}}}
	original, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	decrypted, saved, err := original.DecryptAndSaveParameters(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("DecryptAndSaveParameters failed: %v", err)
	}

	reEncrypted, err := decrypted.EncryptWithSavedParameters(cipher, saved)
	if err != nil {
		t.Fatalf("EncryptWithSavedParameters failed: %v", err)
	}

	assertEncryptedTreesByteIdentical(t, original.Map, reEncrypted.Map)
	if original.Metadata.Mac.String() != reEncrypted.Metadata.Mac.String() {
		t.Errorf("mac ciphertext changed across a no-op re-encryption")
	}
}

func assertEncryptedTreesByteIdentical(t *testing.T, want, got *tree.EncryptedTree) {
	t.Helper()
	if want.Kind() != got.Kind() {
		t.Fatalf("kind mismatch")
	}
	switch want.Kind() {
	case tree.KindSequence:
		ws, gs := want.Sequence(), got.Sequence()
		if len(ws) != len(gs) {
			t.Fatalf("sequence length mismatch")
		}
		for i := range ws {
			assertEncryptedTreesByteIdentical(t, ws[i], gs[i])
		}
	case tree.KindMap:
		wp, gp := want.Map().Oldest(), got.Map().Oldest()
		for wp != nil && gp != nil {
			if wp.Key != gp.Key {
				t.Fatalf("key order mismatch")
			}
			assertEncryptedTreesByteIdentical(t, wp.Value, gp.Value)
			wp, gp = wp.Next(), gp.Next()
		}
		if wp != nil || gp != nil {
			t.Fatalf("map length mismatch")
		}
	case tree.KindNull:
	default: // KindLeaf
		wl, gl := want.Leaf(), got.Leaf()
		if wl.Form != gl.Form {
			t.Fatalf("leaf form mismatch")
		}
		if wl.Form == value.FormEncrypted && wl.Encrypted.String() != gl.Encrypted.String() {
			t.Errorf("ciphertext changed: %q != %q", wl.Encrypted.String(), gl.Encrypted.String())
		}
	}
}

func TestDecryptDetectsMacMismatch(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}}}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	tampered := tree.NewMap[value.EncryptedLeaf]()
	tampered.Set("username", tree.Leaf(value.NewEscapedLeaf(value.String("mallory"))))
	for pair := encrypted.Map.Map().Oldest(); pair != nil; pair = pair.Next() {
		if pair.Key != "username" {
			tampered.Set(pair.Key, pair.Value)
		}
	}
	encrypted.Map = tree.MapNode(tampered)

	_, err = encrypted.Decrypt(context.Background(), cipher, reg)
	var mismatch *metadata.MacMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected a MacMismatchError, got %v", err)
	}
}

func TestSetMapPreservesLastModifiedWhenUnchanged(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}}}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	decrypted, err := encrypted.Decrypt(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}

	later := now.Add(time.Hour)
	identicalMap := buildSamplePlaintext()
	decrypted.SetMap(hasher, identicalMap, later)
	if !decrypted.Metadata.LastModified.Equal(now) {
		t.Errorf("LastModified changed for an unchanged map: got %v, want %v", decrypted.Metadata.LastModified, now)
	}

	changedMap := tree.NewMap[value.Value]()
	changedMap.Set("username", tree.Leaf(value.String("bob")))
	decrypted.SetMap(hasher, tree.MapNode(changedMap), later)
	if !decrypted.Metadata.LastModified.Equal(later) {
		t.Errorf("LastModified did not advance for a changed map")
	}
}

func TestRemoveIntegrationKeyAndRotate(t *testing.T) {
	identityA, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity failed: %v", err)
	}
	identityB, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity failed: %v", err)
	}
	recipientA, recipientB := identityA.Recipient().String(), identityB.Recipient().String()

	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	both := integration.NewRegistry(integration.NewAge(staticKeyProvider{
		integration.AgeName: {identityA.String(), identityB.String()},
	}))
	cfg := BuilderConfig{Keys: []BuilderKey{{
		Integration: integration.AgeName,
		KeyIDs:      []string{recipientA, recipientB},
	}}}
	encrypted, err := Build(context.Background(), cipher, hasher, both, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	rotated, err := encrypted.RemoveIntegrationKeyAndRotate(context.Background(), cipher, both, integration.AgeName, recipientA)
	if err != nil {
		t.Fatalf("RemoveIntegrationKeyAndRotate failed: %v", err)
	}

	onlyA := integration.NewRegistry(integration.NewAge(staticKeyProvider{
		integration.AgeName: {identityA.String()},
	}))
	if _, err := rotated.Decrypt(context.Background(), cipher, onlyA); err == nil {
		t.Errorf("removed recipient A's private key must no longer decrypt the rotated file")
	}

	onlyB := integration.NewRegistry(integration.NewAge(staticKeyProvider{
		integration.AgeName: {identityB.String()},
	}))
	decrypted, err := rotated.Decrypt(context.Background(), cipher, onlyB)
	if err != nil {
		t.Fatalf("remaining recipient B must still decrypt the rotated file: %v", err)
	}
	if !tree.Equal(decrypted.Map, plaintext) {
		t.Errorf("rotated file's plaintext does not match the original")
	}

	leaf, _ := encrypted.Map.Map().Get("username")
	rotatedLeaf, _ := rotated.Map.Map().Get("username")
	if leaf.Leaf().Encrypted.String() == rotatedLeaf.Leaf().Encrypted.String() {
		t.Errorf("rotation must re-seal leaves under the new data key, ciphertext was unchanged")
	}
}

func TestRemoveIntegrationKeyAndRotateNotFound(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()
	plaintext := buildSamplePlaintext()

	cfg := BuilderConfig{Keys: []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}}}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, time.Now())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	_, err = encrypted.RemoveIntegrationKeyAndRotate(context.Background(), cipher, reg, integration.AgeName, "age1nonexistent")
	if !errors.Is(err, ErrIntegrationKeyNotFound) {
		t.Errorf("expected ErrIntegrationKeyNotFound, got %v", err)
	}
}

func TestSetMapAdvancesLastModifiedOnMacOnlyEncryptedEscapedEdit(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()

	m := tree.NewMap[value.Value]()
	m.Set("username_unencrypted", tree.Leaf(value.String("alice")))
	m.Set("secret", tree.Leaf(value.String("hidden")))
	plaintext := tree.MapNode(m)
	now := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	cfg := BuilderConfig{
		Keys:             []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}},
		Policy:           policy.UnencryptedSuffix("_unencrypted"),
		MacOnlyEncrypted: true,
	}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, now)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	decrypted, err := encrypted.Decrypt(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	macBefore := decrypted.Metadata.Mac

	later := now.Add(time.Hour)
	edited := tree.NewMap[value.Value]()
	edited.Set("username_unencrypted", tree.Leaf(value.String("bob")))
	edited.Set("secret", tree.Leaf(value.String("hidden")))
	decrypted.SetMap(hasher, tree.MapNode(edited), later)

	if decrypted.Metadata.Mac != macBefore {
		t.Fatalf("editing an escaped leaf under mac_only_encrypted must not change the MAC, got %q != %q", decrypted.Metadata.Mac, macBefore)
	}
	if !decrypted.Metadata.LastModified.Equal(later) {
		t.Errorf("last_modified must still advance when the map changed even though the mac didn't, got %v, want %v", decrypted.Metadata.LastModified, later)
	}
}

func TestPolicyEscapesSuffixedLeaves(t *testing.T) {
	reg, recipient := newAgeFixture(t)
	cipher := crypto.NewAES256GCM()
	hasher := crypto.NewSHA512Hasher()

	m := tree.NewMap[value.Value]()
	m.Set("token_unencrypted", tree.Leaf(value.String("visible")))
	m.Set("secret", tree.Leaf(value.String("hidden")))
	plaintext := tree.MapNode(m)

	cfg := BuilderConfig{
		Keys:   []BuilderKey{{Integration: integration.AgeName, KeyIDs: []string{recipient}}},
		Policy: policy.UnencryptedSuffix("_unencrypted"),
	}
	encrypted, err := Build(context.Background(), cipher, hasher, reg, plaintext, cfg, time.Now())
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	leaf, _ := encrypted.Map.Map().Get("token_unencrypted")
	if leaf.Leaf().Form != value.FormEscaped {
		t.Errorf("expected token_unencrypted to escape encryption")
	}
	secretLeaf, _ := encrypted.Map.Map().Get("secret")
	if secretLeaf.Leaf().Form != value.FormEncrypted {
		t.Errorf("expected secret to be encrypted")
	}

	decrypted, err := encrypted.Decrypt(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !tree.Equal(decrypted.Map, plaintext) {
		t.Errorf("decrypted map does not match original plaintext")
	}
}
