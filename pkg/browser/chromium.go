package browser

import (
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var version = regexp.MustCompile(`^\d+\.\d+\.\d+\.\d+$`)

// DetectChromium returns the Chromium bundled with Burp Suite for goos, or
// "" when none is installed. The newest version directory wins.
func DetectChromium(home, goos string) string {
	var base, exe, sep string

	switch goos {
	case "darwin":
		base, exe, sep = "/Applications/Burp Suite Professional.app/Contents/Resources/app/burpbrowser", "Chromium.app/Contents/MacOS/Chromium", "/"
	case "windows":
		base, exe, sep = home+`\AppData\Local\Programs\BurpSuitePro\burpbrowser`, "chrome.exe", `\`
	default:
		base, exe, sep = filepath.Join(home, ".BurpSuite", "burpbrowser"), "chrome", "/"
	}

	entries, err := os.ReadDir(base)
	if err != nil {
		return ""
	}

	var versions []string
	for _, e := range entries {
		if e.IsDir() && version.MatchString(e.Name()) {
			versions = append(versions, e.Name())
		}
	}
	if len(versions) == 0 {
		return ""
	}

	slices.SortFunc(versions, compareVersions)

	return base + sep + versions[len(versions)-1] + sep + exe
}

// DefaultExtensionPath is where Burp Suite unpacks DOM Invader.
func DefaultExtensionPath(home string) string {
	return filepath.Join(home, ".BurpSuite", "burp-chromium-extension", "dom-invader-extension")
}

func compareVersions(a, b string) int {
	pa, pb := strings.Split(a, "."), strings.Split(b, ".")
	for i := range pa {
		x, _ := strconv.Atoi(pa[i])
		y, _ := strconv.Atoi(pb[i])
		if x != y {
			return x - y
		}
	}
	return 0
}
