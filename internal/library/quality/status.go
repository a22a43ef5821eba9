// Package quality defines episode statuses, release qualities and the
// composite status codes that combine them.
package quality

// Status is the state of an episode in the library.
type Status int

const (
	StatusUnknown        Status = -1
	StatusUnaired        Status = 1
	StatusSnatched       Status = 2
	StatusWanted         Status = 3
	StatusDownloaded     Status = 4
	StatusSkipped        Status = 5
	StatusArchived       Status = 6
	StatusIgnored        Status = 7
	StatusSnatchedProper Status = 9
	StatusSubtitled      Status = 10
	StatusFailed         Status = 11
	StatusSnatchedBest   Status = 12
)

var statusNames = map[Status]string{
	StatusUnknown:        "Unknown",
	StatusUnaired:        "Unaired",
	StatusSnatched:       "Snatched",
	StatusWanted:         "Wanted",
	StatusDownloaded:     "Downloaded",
	StatusSkipped:        "Skipped",
	StatusArchived:       "Archived",
	StatusIgnored:        "Ignored",
	StatusSnatchedProper: "Snatched (Proper)",
	StatusSubtitled:      "Subtitled",
	StatusFailed:         "Failed",
	StatusSnatchedBest:   "Snatched (Best)",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// SnatchedStatuses are the statuses recorded when a release is grabbed.
var SnatchedStatuses = []Status{StatusSnatched, StatusSnatchedBest, StatusSnatchedProper}

// IsSnatched reports whether s is one of the snatched statuses.
func (s Status) IsSnatched() bool {
	switch s {
	case StatusSnatched, StatusSnatchedBest, StatusSnatchedProper:
		return true
	}
	return false
}

// Quality is a single release quality flag.
type Quality int

const (
	None           Quality = 0
	SDTV           Quality = 1
	SDDVD          Quality = 1 << 1
	HDTV           Quality = 1 << 2
	RawHDTV        Quality = 1 << 3
	FullHDTV       Quality = 1 << 4
	HDWebDL        Quality = 1 << 5
	FullHDWebDL    Quality = 1 << 6
	HDBluRay       Quality = 1 << 7
	FullHDBluRay   Quality = 1 << 8
	UHD4KTV        Quality = 1 << 9
	UHD4KWebDL     Quality = 1 << 10
	UHD4KBluRay    Quality = 1 << 11
	UHD8KTV        Quality = 1 << 12
	UHD8KWebDL     Quality = 1 << 13
	UHD8KBluRay    Quality = 1 << 14
	QualityUnknown Quality = 1 << 15
)

var qualityNames = map[Quality]string{
	None:           "N/A",
	SDTV:           "SDTV",
	SDDVD:          "SD DVD",
	HDTV:           "720p HDTV",
	RawHDTV:        "RawHD TV",
	FullHDTV:       "1080p HDTV",
	HDWebDL:        "720p WEB-DL",
	FullHDWebDL:    "1080p WEB-DL",
	HDBluRay:       "720p BluRay",
	FullHDBluRay:   "1080p BluRay",
	UHD4KTV:        "4K UHD TV",
	UHD4KWebDL:     "4K UHD WEB-DL",
	UHD4KBluRay:    "4K UHD BluRay",
	UHD8KTV:        "8K UHD TV",
	UHD8KWebDL:     "8K UHD WEB-DL",
	UHD8KBluRay:    "8K UHD BluRay",
	QualityUnknown: "Unknown",
}

func (q Quality) String() string {
	if name, ok := qualityNames[q]; ok {
		return name
	}
	return "Unknown"
}

// Composite packs a status and quality into the integer stored for
// episodes and history actions.
func Composite(status Status, q Quality) int {
	return int(status) + 100*int(q)
}

// Split unpacks a composite status code.
func Split(composite int) (Status, Quality) {
	if composite < 0 {
		return StatusUnknown, QualityUnknown
	}
	return Status(composite % 100), Quality(composite / 100)
}
