package ntpi

import (
	"encoding/hex"
	"fmt"
	"sort"

	"ntpidump/internal/pipeline"
)

// KeySet holds the AES-256-CBC key and IV for every encrypted region type
// of one firmware version family.
type KeySet struct {
	keys map[RegionType][]byte
	ivs  map[RegionType][]byte
}

// RegionKey returns the key and IV for a region type.
func (k *KeySet) RegionKey(t RegionType) (key, iv []byte, err error) {
	key, okKey := k.keys[t]
	iv, okIV := k.ivs[t]
	if !okKey || !okIV {
		return nil, nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "key schedule",
			fmt.Sprintf("no key material for region %s", t.Name()), nil)
	}
	return key, iv, nil
}

type versionKey struct {
	major, minor, patch uint64
}

// Region keys are issued per firmware version family by the vendor's
// packaging tool. Add new versions here as they are recovered.
var versionKeys = map[versionKey]map[RegionType][2]string{
	{1, 3, 0}: {
		RegionMetadata:   {"08ed9260dec3807aac3ec00e765186cf4b9c677601ba844f8ec3e8c2fe1e11cb", "0797205f6b02c0232cd2798795ba588d"},
		RegionPatch:      {"7cec0ee7e63a703197afa8e09ce40f9b10a5fded6e5f04cb4ba7a435ed600288", "01c5aaae7c4001592ea6a2310364a9a1"},
		RegionRawProgram: {"76fa1a8d6663aae8b964470c384508f7f974d21af2535cd3549c7c51ed68b0e6", "de930fcc2c37009400e21dfa9f7d1363"},
		RegionKeyMap:     {"1c37c2a0b579512481e8529532909c7c1be72f9bb5e1a4610328a5e2b67c10f4", "ab15d90ce88a83680a4074d5bb96d94c"},
		RegionFileIndex:  {"4ae22e3ae6ff0b65d06fa18df4f99ae59e6a90cb92ca03de65b64fc0fac958ce", "eaaa17604ad7dae5773639c217978da5"},
	},
}

// KeysForVersion selects the key set for a container version. An exact
// major.minor.patch match wins; otherwise any entry sharing major.minor is
// accepted (patch releases reuse keys). An unsupported version is a format
// error naming the version and the versions this build knows.
func KeysForVersion(major, minor, patch uint64) (*KeySet, error) {
	raw, ok := versionKeys[versionKey{major, minor, patch}]
	if !ok {
		for ver, candidate := range versionKeys {
			if ver.major == major && ver.minor == minor {
				raw = candidate
				ok = true
				break
			}
		}
	}
	if !ok {
		return nil, pipeline.Wrap(pipeline.ErrFormat, "parse", "key schedule",
			fmt.Sprintf("unsupported container version %d.%d.%d (supported: %s)",
				major, minor, patch, supportedVersions()), nil)
	}

	set := &KeySet{
		keys: make(map[RegionType][]byte, len(raw)),
		ivs:  make(map[RegionType][]byte, len(raw)),
	}
	for regionType, pair := range raw {
		key, err := hex.DecodeString(pair[0])
		if err != nil {
			return nil, fmt.Errorf("decode key for region %s: %w", regionType.Name(), err)
		}
		iv, err := hex.DecodeString(pair[1])
		if err != nil {
			return nil, fmt.Errorf("decode iv for region %s: %w", regionType.Name(), err)
		}
		set.keys[regionType] = key
		set.ivs[regionType] = iv
	}
	return set, nil
}

// SupportedVersions lists the version families this build carries keys for.
func SupportedVersions() []string {
	versions := make([]string, 0, len(versionKeys))
	for ver := range versionKeys {
		versions = append(versions, fmt.Sprintf("%d.%d.%d", ver.major, ver.minor, ver.patch))
	}
	sort.Strings(versions)
	return versions
}

func supportedVersions() string {
	versions := SupportedVersions()
	out := ""
	for i, v := range versions {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}
