// Package score implements the standalone NWF scoring model:
// a six-signal weighted composite, a walk-forward confidence
// proxy, and the volume-based liquidity scale. It exposes
// [Compute], [Signals], signal weights, and [ModelVersion].
package score
