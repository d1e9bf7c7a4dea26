package distro

import (
	"bufio"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// PackageManager identifies the native package manager of the host.
type PackageManager string

const (
	Apt    PackageManager = "apt"
	Dnf    PackageManager = "dnf"
	Yum    PackageManager = "yum"
	Pacman PackageManager = "pacman"
	Zypper PackageManager = "zypper"
	None   PackageManager = "none"
)

// Executable returns the binary that drives the package manager.
func (m PackageManager) Executable() string {
	switch m {
	case Apt:
		return "apt-get"
	case Dnf, Yum, Pacman, Zypper:
		return string(m)
	default:
		return ""
	}
}

// Family groups distributions sharing a packaging lineage.
type Family string

const (
	FamilyDebian  Family = "debian"
	FamilyRHEL    Family = "rhel"
	FamilyArch    Family = "arch"
	FamilySUSE    Family = "suse"
	FamilyUnknown Family = "unknown"
)

const (
	AdminGroupSudo  = "sudo"
	AdminGroupWheel = "wheel"
)

// DefaultOSReleasePath is where os-release metadata lives on systemd-era distributions.
const DefaultOSReleasePath = "/etc/os-release"

type familyRule struct {
	family   Family
	ids      []string
	managers []PackageManager
}

// Order matters: it is the precedence for ID_LIKE matching and for the
// fallback probe when the family is unknown.
var familyRules = []familyRule{
	{family: FamilyDebian, ids: []string{"debian", "ubuntu", "linuxmint", "pop", "raspbian", "elementary", "kali", "neon", "zorin"}, managers: []PackageManager{Apt}},
	{family: FamilyRHEL, ids: []string{"fedora", "rhel", "centos", "rocky", "almalinux", "ol", "amzn"}, managers: []PackageManager{Dnf, Yum}},
	{family: FamilyArch, ids: []string{"arch", "manjaro", "endeavouros"}, managers: []PackageManager{Pacman}},
	{family: FamilySUSE, ids: []string{"opensuse", "opensuse-leap", "opensuse-tumbleweed", "sles", "suse"}, managers: []PackageManager{Zypper}},
}

// Info is the memoized result of Detect.
type Info struct {
	ID             string
	IDLike         []string
	PrettyName     string
	Family         Family
	PackageManager PackageManager
	AdminGroup     string
}

// Detector inspects os-release metadata once and caches the result.
type Detector struct {
	path     string
	lookPath func(string) (string, error)

	once sync.Once
	info *Info
	err  error
}

// Option configures a Detector.
type Option func(*Detector)

// WithOSReleasePath overrides the os-release location.
func WithOSReleasePath(path string) Option {
	return func(d *Detector) {
		if strings.TrimSpace(path) != "" {
			d.path = path
		}
	}
}

// WithLookPath injects the executable probe, mainly for tests.
func WithLookPath(fn func(string) (string, error)) Option {
	return func(d *Detector) {
		if fn != nil {
			d.lookPath = fn
		}
	}
}

// NewDetector constructs a Detector reading DefaultOSReleasePath unless overridden.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{
		path:     DefaultOSReleasePath,
		lookPath: exec.LookPath,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(d)
	}
	return d
}

// Detect returns the host's distribution info, computing it at most once.
func (d *Detector) Detect() (*Info, error) {
	d.once.Do(func() {
		d.info, d.err = d.detect()
	})
	return d.info, d.err
}

func (d *Detector) detect() (*Info, error) {
	f, err := os.Open(d.path)
	if err != nil {
		return nil, ReadError{Path: d.path, Err: err}
	}
	defer f.Close()

	fields, err := Parse(f)
	if err != nil {
		return nil, ReadError{Path: d.path, Err: err}
	}

	info := &Info{
		ID:         strings.ToLower(fields["ID"]),
		IDLike:     strings.Fields(strings.ToLower(fields["ID_LIKE"])),
		PrettyName: fields["PRETTY_NAME"],
	}

	rule, ok := matchFamily(info.ID, info.IDLike)
	if ok {
		info.Family = rule.family
		info.PackageManager = d.probe(rule.managers)
	} else {
		info.Family = FamilyUnknown
		var all []PackageManager
		for _, r := range familyRules {
			all = append(all, r.managers...)
		}
		info.PackageManager = d.probe(all)
	}
	info.AdminGroup = adminGroupFor(info.Family, info.PackageManager)
	return info, nil
}

func (d *Detector) probe(candidates []PackageManager) PackageManager {
	for _, pm := range candidates {
		if _, err := d.lookPath(pm.Executable()); err == nil {
			return pm
		}
	}
	return None
}

func matchFamily(id string, idLike []string) (familyRule, bool) {
	for _, rule := range familyRules {
		for _, candidate := range rule.ids {
			if id == candidate {
				return rule, true
			}
		}
	}
	like := strings.Join(idLike, " ")
	if like == "" {
		return familyRule{}, false
	}
	for _, rule := range familyRules {
		for _, candidate := range rule.ids {
			if strings.Contains(like, candidate) {
				return rule, true
			}
		}
	}
	return familyRule{}, false
}

func adminGroupFor(family Family, pm PackageManager) string {
	if family == FamilyDebian || (family == FamilyUnknown && pm == Apt) {
		return AdminGroupSudo
	}
	return AdminGroupWheel
}

// Parse reads os-release style KEY=value lines. Values may be single or double quoted.
func Parse(r io.Reader) (map[string]string, error) {
	fields := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		fields[strings.TrimSpace(key)] = unquote(strings.TrimSpace(value))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return fields, nil
}

func unquote(value string) string {
	if len(value) >= 2 {
		first, last := value[0], value[len(value)-1]
		if (first == '"' || first == '\'') && first == last {
			return value[1 : len(value)-1]
		}
	}
	return value
}
