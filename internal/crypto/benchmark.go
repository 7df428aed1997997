package crypto

import (
	"context"
	"time"
)

const (
	benchmarkPassword = "benchmark_password_12345"
	benchmarkData     = "This is test data for benchmarking purposes. It contains enough text to provide meaningful encryption benchmarks."
)

// BenchmarkResult reports one derive/seal/open cycle at the engine's cost.
type BenchmarkResult struct {
	Cost          KDFCost
	KeyDerivation time.Duration
	Encryption    time.Duration
	Decryption    time.Duration
	Total         time.Duration
	DataSize      int
}

// EncryptionThroughput returns MiB/s for sealing, or 0 if unmeasurable.
func (r BenchmarkResult) EncryptionThroughput() float64 {
	return throughput(r.DataSize, r.Encryption)
}

// DecryptionThroughput returns MiB/s for opening, or 0 if unmeasurable.
func (r BenchmarkResult) DecryptionThroughput() float64 {
	return throughput(r.DataSize, r.Decryption)
}

// MeetsTarget reports whether both cipher operations took under a millisecond.
func (r BenchmarkResult) MeetsTarget() bool {
	return r.Encryption < time.Millisecond && r.Decryption < time.Millisecond
}

func throughput(size int, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(size) / (1 << 20) / d.Seconds()
}

// Benchmark times a key derivation plus one direct seal and open.
func (e *CryptoEngine) Benchmark(ctx context.Context) (*BenchmarkResult, error) {
	start := time.Now()

	params, err := RandomKeyDerivationParams(e.cost, e.entropy)
	if err != nil {
		return nil, err
	}

	deriveStart := time.Now()
	key, err := deriveKeyContext(ctx, []byte(benchmarkPassword), params)
	if err != nil {
		return nil, err
	}
	defer key.Destroy()
	deriveTime := time.Since(deriveStart)

	nonce, err := e.entropy.Nonce()
	if err != nil {
		return nil, err
	}

	encStart := time.Now()
	ct, err := EncryptDirect([]byte(benchmarkData), key.Bytes(), nonce[:])
	if err != nil {
		return nil, err
	}
	encTime := time.Since(encStart)

	decStart := time.Now()
	pt, err := DecryptDirect(ct, key.Bytes(), nonce[:])
	if err != nil {
		return nil, err
	}
	decTime := time.Since(decStart)
	Wipe(pt)

	return &BenchmarkResult{
		Cost:          e.cost,
		KeyDerivation: deriveTime,
		Encryption:    encTime,
		Decryption:    decTime,
		Total:         time.Since(start),
		DataSize:      len(benchmarkData),
	}, nil
}
