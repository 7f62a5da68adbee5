package linkdrop

import "strings"

// ClaimURL builds the wallet link that lets the holder claim a linkdrop:
// <walletURL>/linkdrop/<contractID>/<privateKey>
func ClaimURL(walletURL, contractID, privateKey string) string {
	return strings.TrimRight(walletURL, "/") + "/linkdrop/" + contractID + "/" + privateKey
}
