package transcoder

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Provider identifies a codec implementation.
type Provider uint8

const (
	ProviderAuto    Provider = iota // Let the registry choose
	ProviderLibvpx                  // BSD VP8/VP9
	ProviderLibopus                 // BSD Opus
	ProviderCustom                  // Registered by the application
	providerCount
)

// License represents the software license of a provider.
type License uint8

const (
	LicenseGPL License = iota // Copyleft - requires source disclosure
	LicenseBSD                // Permissive - no copyleft obligations
)

// Permissive returns true if the license has no copyleft obligations.
func (l License) Permissive() bool { return l == LicenseBSD }

type providerMeta struct {
	Name    string
	License License
}

var providerInfo = [providerCount]providerMeta{
	ProviderAuto:    {"auto", LicenseBSD},
	ProviderLibvpx:  {"libvpx", LicenseBSD},
	ProviderLibopus: {"libopus", LicenseBSD},
	ProviderCustom:  {"custom", LicenseGPL},
}

// String returns the provider name.
func (p Provider) String() string {
	if p >= providerCount {
		return "unknown"
	}
	return providerInfo[p].Name
}

// License returns the provider's license type. Custom providers are assumed
// copyleft so that they never displace a permissive default silently.
func (p Provider) License() License {
	if p >= providerCount {
		return LicenseGPL
	}
	return providerInfo[p].License
}

// Factories registered per mime type and provider.
type (
	DecoderFactory      func(format *MediaFormat) (Decoder, error)
	VideoEncoderFactory func(format *MediaFormat) (VideoEncoder, error)
	AudioEncoderFactory func(format *MediaFormat) (AudioEncoder, error)
)

type providerSet[F any] struct {
	factories map[string]map[Provider]F
	defaults  map[string]Provider
}

func newProviderSet[F any]() providerSet[F] {
	return providerSet[F]{
		factories: make(map[string]map[Provider]F),
		defaults:  make(map[string]Provider),
	}
}

func (s providerSet[F]) register(mime string, p Provider, f F) {
	key := strings.ToLower(mime)
	if s.factories[key] == nil {
		s.factories[key] = make(map[Provider]F)
	}
	s.factories[key][p] = f

	// Set default: prefer permissive providers
	current, exists := s.defaults[key]
	if !exists || (p.License().Permissive() && !current.License().Permissive()) {
		s.defaults[key] = p
	}
}

func (s providerSet[F]) lookup(mime string, p Provider) (F, Provider, error) {
	var zero F
	key := strings.ToLower(mime)
	providers := s.factories[key]
	if providers == nil {
		return zero, 0, fmt.Errorf("%w: no providers for %s", ErrCodecNotSupported, mime)
	}
	if p == ProviderAuto {
		p = s.defaults[key]
	}
	f, ok := providers[p]
	if !ok {
		return zero, 0, fmt.Errorf("%w: %s for %s", ErrProviderNotFound, p, mime)
	}
	return f, p, nil
}

func (s providerSet[F]) providers(mime string) []Provider {
	providers := s.factories[strings.ToLower(mime)]
	out := make([]Provider, 0, len(providers))
	for p := range providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Registry is a CodecFactory backed by registered factories. Native providers
// register themselves into DefaultRegistry when their libraries load.
type Registry struct {
	mu sync.RWMutex

	decoders      providerSet[DecoderFactory]
	videoEncoders providerSet[VideoEncoderFactory]
	audioEncoders providerSet[AudioEncoderFactory]
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		decoders:      newProviderSet[DecoderFactory](),
		videoEncoders: newProviderSet[VideoEncoderFactory](),
		audioEncoders: newProviderSet[AudioEncoderFactory](),
	}
}

// DefaultRegistry holds the codecs available in this process.
var DefaultRegistry = NewRegistry()

// RegisterDecoder registers a decoder factory for a mime type.
func (r *Registry) RegisterDecoder(mime string, p Provider, f DecoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders.register(mime, p, f)
}

// RegisterVideoEncoder registers a video encoder factory for a mime type.
func (r *Registry) RegisterVideoEncoder(mime string, p Provider, f VideoEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.videoEncoders.register(mime, p, f)
}

// RegisterAudioEncoder registers an audio encoder factory for a mime type.
func (r *Registry) RegisterAudioEncoder(mime string, p Provider, f AudioEncoderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.audioEncoders.register(mime, p, f)
}

// SetDefaultProvider selects the provider used for mime when ProviderAuto is
// requested, for decoders and encoders alike.
func (r *Registry) SetDefaultProvider(mime string, p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := strings.ToLower(mime)
	r.decoders.defaults[key] = p
	r.videoEncoders.defaults[key] = p
	r.audioEncoders.defaults[key] = p
}

// DecoderProviders returns the providers able to decode mime.
func (r *Registry) DecoderProviders(mime string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.decoders.providers(mime)
}

// EncoderProviders returns the providers able to encode mime.
func (r *Registry) EncoderProviders(mime string) []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append(r.videoEncoders.providers(mime), r.audioEncoders.providers(mime)...)
}

// NewDecoder implements CodecFactory.
func (r *Registry) NewDecoder(format *MediaFormat) (Decoder, error) {
	r.mu.RLock()
	f, _, err := r.decoders.lookup(format.MimeType, ProviderAuto)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(format)
}

// NewVideoEncoder implements CodecFactory.
func (r *Registry) NewVideoEncoder(format *MediaFormat) (VideoEncoder, error) {
	r.mu.RLock()
	f, _, err := r.videoEncoders.lookup(format.MimeType, ProviderAuto)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(format)
}

// NewAudioEncoder implements CodecFactory.
func (r *Registry) NewAudioEncoder(format *MediaFormat) (AudioEncoder, error) {
	r.mu.RLock()
	f, _, err := r.audioEncoders.lookup(format.MimeType, ProviderAuto)
	r.mu.RUnlock()
	if err != nil {
		return nil, err
	}
	return f(format)
}
