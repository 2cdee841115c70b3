package metadata

import (
	"context"
	"errors"
	"testing"
	"time"

	"filippo.io/age"

	"github.com/cryptconf/cryptconf/pkg/crypto"
	"github.com/cryptconf/cryptconf/pkg/integration"
	"github.com/cryptconf/cryptconf/pkg/policy"
	"github.com/cryptconf/cryptconf/pkg/tree"
	"github.com/cryptconf/cryptconf/pkg/value"
)

type memKeyProvider map[string][]string

func (m memKeyProvider) PrivateKeys(name string) []string { return m[name] }

func mustAgeIdentity(t *testing.T) *age.X25519Identity {
	t.Helper()
	id, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("GenerateX25519Identity failed: %v", err)
	}
	return id
}

func TestAddKeysAndDecryptDataKey(t *testing.T) {
	identity := mustAgeIdentity(t)
	keys := memKeyProvider{integration.AgeName: {identity.String()}}
	reg := integration.NewRegistry(integration.NewAge(keys))

	dataKey, _ := crypto.GenerateDataKey()
	m := NewIntegrationMetadata()
	ageInteg, _ := reg.ByName(integration.AgeName)
	if err := m.AddKeys(context.Background(), ageInteg, []string{identity.Recipient().String()}, dataKey); err != nil {
		t.Fatalf("AddKeys failed: %v", err)
	}

	got, err := m.DecryptDataKey(context.Background(), reg)
	if err != nil {
		t.Fatalf("DecryptDataKey failed: %v", err)
	}
	if string(got.Bytes()) != string(dataKey.Bytes()) {
		t.Errorf("recovered data key does not match original")
	}
}

func TestDecryptDataKeyMissing(t *testing.T) {
	reg := integration.NewRegistry(integration.NewAge(memKeyProvider{}))
	m := NewIntegrationMetadata()
	if _, err := m.DecryptDataKey(context.Background(), reg); !errors.Is(err, ErrMissingDataKey) {
		t.Errorf("expected ErrMissingDataKey, got %v", err)
	}
}

func TestRemoveIntegrationKeyAndRotateRevokesOldKey(t *testing.T) {
	oldIdentity := mustAgeIdentity(t)
	newIdentity := mustAgeIdentity(t)
	keys := memKeyProvider{integration.AgeName: {oldIdentity.String(), newIdentity.String()}}
	reg := integration.NewRegistry(integration.NewAge(keys))
	ageInteg, _ := reg.ByName(integration.AgeName)

	dataKey, _ := crypto.GenerateDataKey()
	m := NewIntegrationMetadata()
	if err := m.AddKeys(context.Background(), ageInteg, []string{
		oldIdentity.Recipient().String(),
		newIdentity.Recipient().String(),
	}, dataKey); err != nil {
		t.Fatalf("AddKeys failed: %v", err)
	}

	rotated, err := m.RemoveIntegrationKeyAndRotate(context.Background(), reg, integration.AgeName, oldIdentity.Recipient().String())
	if err != nil {
		t.Fatalf("RemoveIntegrationKeyAndRotate failed: %v", err)
	}
	if rotated == nil {
		t.Fatalf("expected a rotated data key")
	}
	if string(rotated.Bytes()) == string(dataKey.Bytes()) {
		t.Errorf("rotation must generate a genuinely new data key")
	}

	// The revoked recipient's unit is gone, so decrypting with only the
	// old identity must now fail to find a data key.
	onlyOld := integration.NewRegistry(integration.NewAge(memKeyProvider{integration.AgeName: {oldIdentity.String()}}))
	if _, err := m.DecryptDataKey(context.Background(), onlyOld); !errors.Is(err, ErrMissingDataKey) {
		t.Errorf("expected old identity to no longer decrypt after rotation, got %v", err)
	}

	// The surviving recipient can still decrypt, under the new data key.
	got, err := m.DecryptDataKey(context.Background(), reg)
	if err != nil {
		t.Fatalf("DecryptDataKey with surviving identity failed: %v", err)
	}
	if string(got.Bytes()) != string(rotated.Bytes()) {
		t.Errorf("surviving identity must decrypt to the rotated data key")
	}
}

func TestRemoveIntegrationKeyAndRotateNoopWhenNotFound(t *testing.T) {
	reg := integration.NewRegistry(integration.NewAge(memKeyProvider{}))
	m := NewIntegrationMetadata()
	rotated, err := m.RemoveIntegrationKeyAndRotate(context.Background(), reg, integration.AgeName, "age1nonexistent")
	if err != nil || rotated != nil {
		t.Errorf("expected (nil, nil) when nothing was removed, got (%v, %v)", rotated, err)
	}
}

func buildMacTestTree() *tree.DecryptedTree {
	m := tree.NewMap[value.Value]()
	m.Set("a", tree.Leaf(value.String("one")))
	m.Set("b", tree.Leaf(value.Integer(2)))
	return tree.MapNode(m)
}

func TestComputeMacIsOrderSensitive(t *testing.T) {
	t1 := buildMacTestTree()

	m2 := tree.NewMap[value.Value]()
	m2.Set("b", tree.Leaf(value.Integer(2)))
	m2.Set("a", tree.Leaf(value.String("one")))
	t2 := tree.MapNode(m2)

	mac1 := ComputeMac(crypto.NewSHA512Hasher(), policy.None(), false, t1)
	mac2 := ComputeMac(crypto.NewSHA512Hasher(), policy.None(), false, t2)
	if mac1 == mac2 {
		t.Errorf("MAC must be sensitive to key reordering")
	}
}

func TestComputeMacStableAcrossRepeatedRuns(t *testing.T) {
	t1 := buildMacTestTree()
	t2 := buildMacTestTree()
	mac1 := ComputeMac(crypto.NewSHA512Hasher(), policy.None(), false, t1)
	mac2 := ComputeMac(crypto.NewSHA512Hasher(), policy.None(), false, t2)
	if mac1 != mac2 {
		t.Errorf("MAC over identical trees must be identical, got %q and %q", mac1, mac2)
	}
}

func TestMacOnlyEncryptedIgnoresEscapedLeafEdits(t *testing.T) {
	cfg := policy.UnencryptedSuffix("_unencrypted")

	build := func(escapedValue string) *tree.DecryptedTree {
		m := tree.NewMap[value.Value]()
		m.Set("token_unencrypted", tree.Leaf(value.String(escapedValue)))
		m.Set("secret", tree.Leaf(value.String("hidden")))
		return tree.MapNode(m)
	}

	mac1 := ComputeMac(crypto.NewSHA512Hasher(), cfg, true, build("plaintext-a"))
	mac2 := ComputeMac(crypto.NewSHA512Hasher(), cfg, true, build("plaintext-b"))
	if mac1 != mac2 {
		t.Errorf("mac_only_encrypted must ignore edits to an escaped leaf")
	}

	build2 := func(secretValue string) *tree.DecryptedTree {
		m := tree.NewMap[value.Value]()
		m.Set("token_unencrypted", tree.Leaf(value.String("plaintext")))
		m.Set("secret", tree.Leaf(value.String(secretValue)))
		return tree.MapNode(m)
	}
	mac3 := ComputeMac(crypto.NewSHA512Hasher(), cfg, true, build2("hidden-a"))
	mac4 := ComputeMac(crypto.NewSHA512Hasher(), cfg, true, build2("hidden-b"))
	if mac3 == mac4 {
		t.Errorf("mac_only_encrypted must still detect edits to an encrypted leaf")
	}
}

func TestFileMetadataEncryptDecryptRoundTrip(t *testing.T) {
	cipher := crypto.NewAES256GCM()
	dataKey, _ := crypto.GenerateDataKey()

	identity := mustAgeIdentity(t)
	keys := memKeyProvider{integration.AgeName: {identity.String()}}
	reg := integration.NewRegistry(integration.NewAge(keys))
	ageInteg, _ := reg.ByName(integration.AgeName)

	integrations := NewIntegrationMetadata()
	if err := integrations.AddKeys(context.Background(), ageInteg, []string{identity.Recipient().String()}, dataKey); err != nil {
		t.Fatalf("AddKeys failed: %v", err)
	}

	plain := &DecryptedFileMetadata{
		Integrations: integrations,
		LastModified: time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC),
		Mac:          "ABCDEF0123456789",
	}

	encrypted, err := plain.Encrypt(cipher, dataKey, nil)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, gotDataKey, savedNonce, err := encrypted.Decrypt(context.Background(), cipher, reg)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if decrypted.Mac != plain.Mac {
		t.Errorf("MAC mismatch after round trip: got %q want %q", decrypted.Mac, plain.Mac)
	}
	if string(gotDataKey.Bytes()) != string(dataKey.Bytes()) {
		t.Errorf("data key mismatch after round trip")
	}
	if savedNonce == nil {
		t.Errorf("expected a saved MAC nonce")
	}
}

func TestVerifyMacDetectsTamper(t *testing.T) {
	root := buildMacTestTree()
	mac := ComputeMac(crypto.NewSHA512Hasher(), policy.None(), false, root)

	m := &DecryptedFileMetadata{Mac: mac}
	if err := m.VerifyMac(crypto.NewSHA512Hasher(), root); err != nil {
		t.Fatalf("expected matching MAC to verify, got %v", err)
	}

	m.Mac = "0000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000"
	err := m.VerifyMac(crypto.NewSHA512Hasher(), root)
	var mismatch *MacMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected *MacMismatchError, got %v", err)
	}
}

func TestRecomputeMacPreservesTimestampWhenUnchanged(t *testing.T) {
	root := buildMacTestTree()
	initial := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	m := &DecryptedFileMetadata{LastModified: initial}
	m.RecomputeMac(crypto.NewSHA512Hasher(), root, false, initial)

	later := initial.Add(time.Hour)
	m.RecomputeMac(crypto.NewSHA512Hasher(), root, false, later)
	if !m.LastModified.Equal(initial) {
		t.Errorf("unchanged plaintext must not bump last_modified, got %v", m.LastModified)
	}

	changedRoot := tree.NewMap[value.Value]()
	changedRoot.Set("a", tree.Leaf(value.String("different")))
	m.RecomputeMac(crypto.NewSHA512Hasher(), tree.MapNode(changedRoot), true, later)
	if !m.LastModified.Equal(later) {
		t.Errorf("changed plaintext must bump last_modified to %v, got %v", later, m.LastModified)
	}
}

func TestTimestampFormatRoundTrip(t *testing.T) {
	in := time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC)
	s := FormatTimestamp(in)
	if s != "2024-03-14T15:09:26Z" {
		t.Errorf("got %q", s)
	}
	out, err := ParseTimestamp(s)
	if err != nil {
		t.Fatalf("ParseTimestamp failed: %v", err)
	}
	if !out.Equal(in) {
		t.Errorf("round trip mismatch: got %v want %v", out, in)
	}
}
