package cdnclient

import (
	"fmt"

	"galaxydl/internal/constants"
	"galaxydl/pkg/hashutil"
)

// GetBuildsURL, GetManifestURL and GetChunkURL mirror
// original_source/galaxy_dl/api.py's named URL-construction methods
// (GOG_getBuildsUrl/GOG_getManifestUrl/GOG_getStoreUrl in the Python
// tool) instead of formatting endpoint strings ad hoc at call sites.

// GetBuildsURL builds the builds-listing endpoint for a product.
func GetBuildsURL(productID, platform string, generation int) string {
	return fmt.Sprintf(constants.BuildsURLTemplate, productID, platform, generation)
}

// GetV1ManifestURL builds a v1 manifest/repository-file endpoint.
func GetV1ManifestURL(productID, platform, repositoryID, name string) string {
	return fmt.Sprintf(constants.V1ManifestURLTemplate, productID, platform, repositoryID, name)
}

// GetManifestURL builds a v2 meta (manifest) endpoint addressed by hash.
func GetManifestURL(hash string) string {
	a, b, h := hashutil.GalaxyPath(hash)
	return fmt.Sprintf(constants.V2ManifestURLTemplate, a, b, h)
}

// GetChunkURL builds a v2 store (chunk) endpoint for a galaxy path rooted
// at rootURL, addressed by the chunk's compressed MD5.
func GetChunkURL(rootURL, compressedMD5 string) string {
	a, b, h := hashutil.GalaxyPath(compressedMD5)
	return fmt.Sprintf("%s/%s/%s/%s", rootURL, a, b, h)
}
