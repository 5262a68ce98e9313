package protostate

import "testing"

func TestRoleInitialPhases(t *testing.T) {
	r := NewResponder()
	if r.Phase != PhaseHandshakeBegin {
		t.Fatalf("responder initial phase = %v, want HandshakeBegin", r.Phase)
	}
	i := NewInitiator()
	if i.Phase != PhaseWaitSetup {
		t.Fatalf("initiator initial phase = %v, want WaitSetup", i.Phase)
	}
}

func TestInstallKeySetsEncryptionOption(t *testing.T) {
	s := NewResponder()
	if s.Options.Has(OptEncryption) {
		t.Fatal("encryption should be unset before InstallKey")
	}
	if err := s.InstallKey([8]byte{1, 2, 3, 4, 5, 6, 7, 8}); err != nil {
		t.Fatalf("InstallKey: %v", err)
	}
	if !s.Options.Has(OptEncryption) || !s.HasKey() || s.Cipher() == nil {
		t.Fatal("InstallKey did not install cipher/option")
	}
}

func TestInstallSeedsSetsErrorDetectionOption(t *testing.T) {
	s := NewInitiator()
	s.InstallSeeds(0x10, 0x20)
	if !s.Options.Has(OptErrorDetection) {
		t.Fatal("error detection should be set after InstallSeeds")
	}
	if s.CrcSeed() != 0x20 {
		t.Fatalf("CrcSeed() = %x, want 0x20", s.CrcSeed())
	}
}

func TestSendRecvSequencesMatchAcrossInstances(t *testing.T) {
	a := NewResponder()
	b := NewInitiator()
	a.InstallSeeds(0x55, 0x00)
	b.InstallSeeds(0x55, 0x00)

	for i := 0; i < 16; i++ {
		sent := a.NextSendCount()
		expected := b.NextRecvCount()
		if sent != expected {
			t.Fatalf("iteration %d: sent=%x expected=%x mismatch", i, sent, expected)
		}
	}
}

func TestCloseScrubsKey(t *testing.T) {
	s := NewResponder()
	_ = s.InstallKey([8]byte{9, 9, 9, 9, 9, 9, 9, 9})
	s.Close()
	if s.Phase != PhaseClosed {
		t.Fatal("Close did not set Phase to Closed")
	}
	if s.HasKey() || s.Cipher() != nil {
		t.Fatal("Close did not scrub key material")
	}
}
