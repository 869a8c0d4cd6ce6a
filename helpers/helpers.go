package helpers

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
)

var fileNameNumberedRegexp = regexp.MustCompile(`(.+)(\s+)+(\d+)+\.(\w+){1}$`)
var fileNameRegexp = regexp.MustCompile(`(.+)\.(\w+){1}$`)
var fileMP3Regexp = regexp.MustCompile(`(.+)\.mp3$`)

// Extensions the decoder can open.
var audioExtensions = []string{".mp3"}

func IsMP3(fileName string) bool {
	return fileMP3Regexp.MatchString(fileName)
}

// IsAudioFile reports whether the file name carries a supported audio
// extension.
func IsAudioFile(fileName string) bool {
	lower := strings.ToLower(fileName)
	for _, ext := range audioExtensions {
		if strings.HasSuffix(lower, ext) && len(lower) > len(ext) {
			return true
		}
	}
	return false
}

// FileExists reports whether the named file or directory exists.
func FileExists(name string) bool {
	if _, err := os.Stat(name); err != nil {
		if os.IsNotExist(err) {
			return false
		}
	}
	return true
}

// NewFileName produces the next free numbered variant of a file name:
// "Track.mp3" -> "Track 2.mp3" -> "Track 3.mp3".
func NewFileName(fileName string) (newName string, err error) {
	nameParts := fileNameNumberedRegexp.FindAllStringSubmatch(fileName, -1)

	if len(nameParts) > 0 && len(nameParts[0]) == 5 && nameParts[0][3] != "" && len(nameParts[0][2]) > 0 {

		num, _ := strconv.Atoi(nameParts[0][3])
		num++

		newName = nameParts[0][1] + nameParts[0][2] + strconv.Itoa(num) + "." + nameParts[0][4]
	} else {
		nameParts = fileNameRegexp.FindAllStringSubmatch(fileName, -1)

		if len(nameParts) == 0 || len(nameParts[0]) != 3 {
			err = fmt.Errorf("bad file name")
			return
		}

		newName = nameParts[0][1] + " 2." + nameParts[0][2]
	}

	return
}
