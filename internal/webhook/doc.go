// Package webhook implements the platform webhook endpoint: subscription
// verification and signed event delivery.
//
// # Security Model
//
// - HMAC-SHA256 signatures (legacy HMAC-SHA1 as fallback) verified with crypto/subtle
// - Body size limits enforced before any parsing
// - No signature details leaked in error responses (always a generic 401)
// - Request logging excludes payloads and signature values
//
// # Request Flow
//
//  1. HTTP POST arrives at /meta-whatsapp (or /webhook)
//  2. Body size checked (reject with 413 if too large)
//  3. Signature headers verified against the app secret (401 on mismatch)
//  4. User-Agent compared with the configured platform agent (401 on mismatch)
//  5. Body decoded as a payload (400 on malformed JSON)
//  6. Payload handed to the sink and 200 "OK" returned immediately
//
// Message processing happens after the response, so the platform never waits
// on the backend and never redelivers because of a slow engine.
package webhook
