package config

// Internal container ports, the ports services listen on inside their
// containers. Host-mapped ports come from the stack document.
var InternalPorts = map[string]int{
	"qbittorrent": 8080,
	"radarr":      7878,
	"sonarr":      8989,
	"prowlarr":    9696,
	"jellyseerr":  5055,
	"jellyfin":    8096,
}

// ContainerNames maps service names to their compose container names.
// These match the service names in the compose template.
var ContainerNames = map[string]string{
	"qbittorrent": "qbittorrent",
	"radarr":      "radarr",
	"sonarr":      "sonarr",
	"prowlarr":    "prowlarr",
	"jellyseerr":  "jellyseerr",
	"jellyfin":    "jellyfin",
}

// APIPrefix is the HTTP API path prefix per service.
var APIPrefix = map[string]string{
	"radarr":     "/api/v3",
	"sonarr":     "/api/v3",
	"prowlarr":   "/api/v1",
	"jellyfin":   "",
	"jellyseerr": "/api/v1",
}

// DependencyOrder is the fixed converge order. Services are ensured in
// this order and dependents of a failed service are skipped.
var DependencyOrder = []string{
	"qbittorrent",
	"radarr",
	"sonarr",
	"prowlarr",
	"jellyfin",
	"jellyseerr",
	"pipeline",
}

// Dependencies maps each service to its direct prerequisites.
var Dependencies = map[string][]string{
	"qbittorrent": nil,
	"radarr":      {"qbittorrent"},
	"sonarr":      {"qbittorrent"},
	"prowlarr":    {"radarr", "sonarr"},
	"jellyfin":    nil,
	"jellyseerr":  {"jellyfin", "radarr", "sonarr"},
	"pipeline":    nil,
}

// Paths inside the service containers, fixed by the compose volume mounts.
const (
	ContainerMovies              = "/data/movies"
	ContainerTV                  = "/data/tv"
	ContainerDownloads           = "/downloads"
	ContainerDownloadsComplete   = "/downloads/complete"
	ContainerDownloadsIncomplete = "/downloads/incomplete"
	ContainerMediaMovies         = "/data/media/movies"
	ContainerMediaTV             = "/data/media/tv"
	ContainerMediaAnime          = "/data/media/anime"
)

// ComposeProjectName is the fixed compose project the whole stack lives in.
const ComposeProjectName = "nas_media_stack"
