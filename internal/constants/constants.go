// Package constants holds the CDN/API endpoint templates consumed by
// pkg/cdnclient. The teacher repo (riverfog7-SophonClientv2) kept these in
// an internal/secrets package that wasn't part of the retrieved sources;
// GOG Galaxy's endpoints are public, so there is nothing secret about them.
package constants

const (
	ContentSystemBaseURL = "https://content-system.gog.com"
	CDNBaseURL            = "https://cdn.gog.com"

	// BuildsURLTemplate lists builds of a product for a platform/generation.
	BuildsURLTemplate = ContentSystemBaseURL + "/products/%s/os/%s/builds?generation=%d"

	// V1ManifestURLTemplate is the plain-JSON v1 manifest endpoint.
	V1ManifestURLTemplate = CDNBaseURL + "/content-system/v1/manifests/%s/%s/%s/%s.json"

	// V2ManifestURLTemplate is the zlib-compressed v2 manifest/meta endpoint,
	// content-addressed by the manifest hash.
	V2ManifestURLTemplate = CDNBaseURL + "/content-system/v2/meta/%s/%s/%s"

	// V2ChunkURLTemplate is the zlib-compressed v2 chunk/store endpoint,
	// content-addressed by the compressed chunk's MD5.
	V2ChunkURLTemplate = CDNBaseURL + "/content-system/v2/store/%s/%s/%s/%s"

	// SecureLinkURLTemplate mints a signed URL set for the store root.
	SecureLinkURLTemplate = ContentSystemBaseURL + "/products/%s/secure_link?_version=2&generation=%d&path=%s"

	// PatchInfoURLTemplate looks up a from/to build patch descriptor.
	PatchInfoURLTemplate = ContentSystemBaseURL + "/products/%s/patches?from_build_id=%s&to_build_id=%s"

	// PatchSecureLinkURLTemplate mints a signed URL set for the patch store root.
	PatchSecureLinkURLTemplate = ContentSystemBaseURL + "/products/%s/secure_link?generation=2&path=/patches/store/%s&client_id=%s&client_secret=%s"

	// EmbedBaseURL and UserGamesURL back the `library` CLI command
	// (library-browsing itself is outside the core's scope per spec.md;
	// this is the one endpoint needed for the minimal `library` surface
	// named in §6). Grounded on original_source/galaxy_dl/constants.py's
	// GOG_EMBED and api.py's get_owned_games, which reads USER_GAMES_URL.
	EmbedBaseURL = "https://embed.gog.com"
	UserGamesURL = EmbedBaseURL + "/user/data/games"

	UserAgent = "galaxydl/0.1.0 (+go)"
)

// Platforms recognised by the builds endpoint.
const (
	PlatformWindows = "windows"
	PlatformMac     = "osx"
	PlatformLinux   = "linux"
)

// Generations.
const (
	GenerationV1 = 1
	GenerationV2 = 2
)

const (
	DefaultConnectTimeoutSeconds = 60
	DefaultChunkReadTimeoutSec   = 10
	ZlibWindowBits               = 15
	SecureLinkExpiryMarginSec    = 60
)
