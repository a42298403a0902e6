package config

import "testing"

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputBase != "kapar" {
		t.Fatalf("OutputBase = %q, want \"kapar\"", cfg.OutputBase)
	}
	if !cfg.Ingest.InferLinks || !cfg.Ingest.InferAliases {
		t.Fatal("defaults must enable link and alias inference")
	}
}

func TestParseAnonDupFlags(t *testing.T) {
	cfg, err := Parse([]string{"-ad"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.AnonDups {
		t.Fatal("-ad must disable anon-dup coalescing")
	}
}

func TestParseOutputBase(t *testing.T) {
	cfg, err := Parse([]string{"-O", "run1"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputBase != "run1" {
		t.Fatalf("OutputBase = %q, want \"run1\"", cfg.OutputBase)
	}
}

func TestParseOutputBaseAttached(t *testing.T) {
	cfg, err := Parse([]string{"-Orun2"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.OutputBase != "run2" {
		t.Fatalf("OutputBase = %q, want \"run2\"", cfg.OutputBase)
	}
}

func TestParseMinSubnetLenAppliesToAllThreeConfigs(t *testing.T) {
	cfg, err := Parse([]string{"-z26"})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Ingest.MinSubnetLen != 26 || cfg.Subnet.MinSubnetLen != 26 || cfg.Alias.MinSubnetLen != 26 {
		t.Fatalf("MinSubnetLen not applied uniformly: ingest=%d subnet=%d alias=%d",
			cfg.Ingest.MinSubnetLen, cfg.Subnet.MinSubnetLen, cfg.Alias.MinSubnetLen)
	}
}

func TestParseBugCompatBundle(t *testing.T) {
	cfg, err := Parse([]string{"-barb"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Ingest.BugRevAnonDup || !cfg.Alias.BugRank || !cfg.Alias.BugBroadcast {
		t.Fatal("-barb must set the a/r/b bug-compat bits")
	}
}

func TestParseFileLists(t *testing.T) {
	cfg, err := Parse([]string{"-P", "trace1.txt", "-P", "trace2.txt", "-B", "bogons.txt"})
	if err != nil {
		t.Fatal(err)
	}
	if len(cfg.PathFiles) != 2 || cfg.PathFiles[0] != "trace1.txt" || cfg.PathFiles[1] != "trace2.txt" {
		t.Fatalf("PathFiles = %v", cfg.PathFiles)
	}
	if len(cfg.BogonFiles) != 1 || cfg.BogonFiles[0] != "bogons.txt" {
		t.Fatalf("BogonFiles = %v", cfg.BogonFiles)
	}
}

func TestParseUnrecognizedFlagErrors(t *testing.T) {
	if _, err := Parse([]string{"-q"}); err == nil {
		t.Fatal("expected an error for an unrecognized flag")
	}
}

func TestParseExtractMode(t *testing.T) {
	cfg, err := Parse([]string{"-x"})
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.Ingest.ModeExtract || !cfg.Subnet.ExtractMode {
		t.Fatal("-x must enable extraction mode in both ingest and subnet configs")
	}
}
