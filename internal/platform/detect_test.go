package platform

import "testing"

func TestParseNvidiaSMI(t *testing.T) {
	out := "NVIDIA A100-SXM4-40GB, 40960\nNVIDIA H100, 81920\n"
	gpus := parseNvidiaSMI(out)
	if len(gpus) != 2 {
		t.Fatalf("parseNvidiaSMI() = %d gpus, want 2", len(gpus))
	}
	if gpus[0].Name != "NVIDIA A100-SXM4-40GB" || gpus[0].MemoryMiB != 40960 {
		t.Fatalf("gpus[0] = %+v", gpus[0])
	}
	if gpus[1].Name != "NVIDIA H100" || gpus[1].MemoryMiB != 81920 {
		t.Fatalf("gpus[1] = %+v", gpus[1])
	}
}

func TestParseNvidiaSMIEmpty(t *testing.T) {
	if gpus := parseNvidiaSMI("\n"); gpus != nil {
		t.Fatalf("parseNvidiaSMI(empty) = %v, want nil", gpus)
	}
}

func TestParseNvidiaSMISkipsMalformedLines(t *testing.T) {
	gpus := parseNvidiaSMI("garbage-no-comma\nNVIDIA T4, 16384\n")
	if len(gpus) != 1 || gpus[0].Name != "NVIDIA T4" {
		t.Fatalf("parseNvidiaSMI() = %+v", gpus)
	}
}
