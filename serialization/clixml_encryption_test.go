package serialization

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/smnsjas/go-psrpcore/objects"
)

// mockEncryptor implements EncryptionProvider for testing.
type mockEncryptor struct{}

func (m *mockEncryptor) Encrypt(data []byte) ([]byte, error) {
	// Simple reverse for testing
	return reverse(data), nil
}

func (m *mockEncryptor) Decrypt(data []byte) ([]byte, error) {
	return reverse(data), nil
}

func reverse(data []byte) []byte {
	res := make([]byte, len(data))
	for i, b := range data {
		res[len(data)-1-i] = b
	}
	return res
}

func TestSecureString_Encryption(t *testing.T) {
	provider := &mockEncryptor{}

	ss, err := objects.NewSecureString("secret")
	if err != nil {
		t.Fatal(err)
	}

	ser := NewSerializerWithEncryption(provider)
	defer ser.Close()
	encoded, err := ser.Serialize(ss)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}

	// The cipher sees the UTF-16LE plaintext.
	wide := []byte{'s', 0, 'e', 0, 'c', 0, 'r', 0, 'e', 0, 't', 0}
	expectedB64 := base64.StdEncoding.EncodeToString(reverse(wide))
	if !strings.Contains(string(encoded), "<SS>"+expectedB64+"</SS>") {
		t.Errorf("expected encrypted content %s, got %s", expectedB64, encoded)
	}

	deser := NewDeserializerWithEncryption(provider)
	defer deser.Close()
	items, err := deser.Deserialize(encoded)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	outSS, ok := items[0].(*objects.SecureString)
	if !ok {
		t.Fatalf("expected *SecureString, got %T", items[0])
	}
	plain, err := outSS.Decrypt()
	if err != nil {
		t.Fatalf("outSS.Decrypt failed: %v", err)
	}
	if string(plain) != "secret" {
		t.Errorf("expected 'secret', got '%s'", plain)
	}
}

func TestSecureString_NonASCII(t *testing.T) {
	provider := &mockEncryptor{}
	ss, err := objects.NewSecureString("pässwörd \U0001F511")
	if err != nil {
		t.Fatal(err)
	}

	got, ok := roundTrip(t, ss, WithEncryption(provider)).(*objects.SecureString)
	if !ok {
		t.Fatalf("expected *SecureString")
	}
	plain, err := got.Decrypt()
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != "pässwörd \U0001F511" {
		t.Errorf("plaintext = %q", plain)
	}
}

func TestSecureString_MissingCipher(t *testing.T) {
	ss, err := objects.NewSecureString("secret")
	if err != nil {
		t.Fatal(err)
	}

	ser := NewSerializer()
	defer ser.Close()
	if _, err := ser.Serialize(ss); !errors.Is(err, ErrMissingCipher) {
		t.Errorf("Serialize without cipher: expected ErrMissingCipher, got %v", err)
	}

	obj := objects.NewPSObject()
	obj.AddNoteProperty("Password", ss)
	if _, err := ser.Serialize(obj); !errors.Is(err, ErrMissingCipher) {
		t.Errorf("nested SecureString: expected ErrMissingCipher, got %v", err)
	}
}

func TestSecureString_Cleared(t *testing.T) {
	ss, err := objects.NewSecureString("secret")
	if err != nil {
		t.Fatal(err)
	}
	ss.Clear()

	ser := NewSerializerWithEncryption(&mockEncryptor{})
	defer ser.Close()
	if _, err := ser.Serialize(ss); err == nil {
		t.Error("expected error serializing a cleared SecureString")
	}
}

func TestPSCredential_RoundTrip(t *testing.T) {
	provider := &mockEncryptor{}
	pass, err := objects.NewSecureString("hunter2")
	if err != nil {
		t.Fatal(err)
	}
	cred := objects.NewPSCredential(`DOMAIN\user`, pass)

	ser := NewSerializerWithEncryption(provider)
	defer ser.Close()
	data, err := ser.SerializeRaw(cred)
	if err != nil {
		t.Fatalf("SerializeRaw failed: %v", err)
	}
	if !strings.Contains(string(data), `<S N="UserName">DOMAIN\user</S><SS N="Password">`) {
		t.Errorf("unexpected credential encoding: %s", data)
	}

	got, ok := roundTrip(t, cred, WithEncryption(provider)).(*objects.PSCredential)
	if !ok {
		t.Fatalf("expected *objects.PSCredential")
	}
	if got.UserName != `DOMAIN\user` {
		t.Errorf("UserName = %q", got.UserName)
	}
	plain, err := got.Password.Decrypt()
	if err != nil {
		t.Fatal(err)
	}
	if string(plain) != "hunter2" {
		t.Errorf("password = %q", plain)
	}
}

func TestPSCredential_NilPassword(t *testing.T) {
	cred := objects.NewPSCredential("user", nil)

	data := serializeRaw(t, cred)
	if !strings.Contains(data, `<S N="UserName">user</S><Nil N="Password"/>`) {
		t.Errorf("expected nil password element, got %s", data)
	}

	got, ok := roundTrip(t, cred).(*objects.PSCredential)
	if !ok {
		t.Fatalf("expected *objects.PSCredential")
	}
	if got.UserName != "user" {
		t.Errorf("UserName = %q", got.UserName)
	}
	if got.Password != nil {
		t.Errorf("Password = %v, want nil", got.Password)
	}
}

func TestScriptBlock_Serialization(t *testing.T) {
	ser := NewSerializer()
	defer ser.Close()
	sb := &objects.ScriptBlock{Text: "Get-Process | Where-Object { $_.Id -eq 1 }"}

	encoded, err := ser.Serialize(sb)
	if err != nil {
		t.Fatalf("Serialize failed: %v", err)
	}
	if !strings.Contains(string(encoded), "<SBK>Get-Process") {
		t.Errorf("expected <SBK> tag, got %s", encoded)
	}

	deser := NewDeserializer()
	defer deser.Close()
	items, err := deser.Deserialize(encoded)
	if err != nil {
		t.Fatalf("Deserialize failed: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}

	outSB, ok := items[0].(objects.ScriptBlock)
	if !ok {
		t.Fatalf("expected ScriptBlock, got %T", items[0])
	}
	if outSB.Text != sb.Text {
		t.Errorf("expected '%s', got '%s'", sb.Text, outSB.Text)
	}
}
