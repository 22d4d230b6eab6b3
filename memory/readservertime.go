package memory

// Server time lives three pointers away from its signature.
var serverTimeChain = []Step{PointerStep(72), PointerStep(8), PointerStep(2116)}

// ReadServerTime follows the server time pointer chain. Zero means one of the
// pointers was not set yet.
func ReadServerTime(mem Reader, sigs SignatureMap) (uint64, error) {
	return ReadChainUint64(mem, sigs[SigServerTime], serverTimeChain...)
}
