package store

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/noseyparker-go/noseyparker/pkg/types"
)

func serializeGroups(groups [][]byte) string {
	if groups == nil {
		return ""
	}
	encoded := make([]string, len(groups))
	for i, g := range groups {
		encoded[i] = base64.StdEncoding.EncodeToString(g)
	}
	data, _ := json.Marshal(encoded)
	return string(data)
}

func deserializeGroups(data string) [][]byte {
	if data == "" {
		return nil
	}
	var encoded []string
	if err := json.Unmarshal([]byte(data), &encoded); err != nil {
		return nil
	}
	result := make([][]byte, len(encoded))
	for i, e := range encoded {
		result[i], _ = base64.StdEncoding.DecodeString(e)
	}
	return result
}

func serializeNamedGroups(groups map[string][]byte) string {
	if len(groups) == 0 {
		return ""
	}
	encoded := make(map[string]string, len(groups))
	for k, v := range groups {
		encoded[k] = base64.StdEncoding.EncodeToString(v)
	}
	data, _ := json.Marshal(encoded)
	return string(data)
}

func deserializeNamedGroups(data string) map[string][]byte {
	if data == "" {
		return nil
	}
	var encoded map[string]string
	if err := json.Unmarshal([]byte(data), &encoded); err != nil {
		return nil
	}
	result := make(map[string][]byte, len(encoded))
	for k, v := range encoded {
		result[k], _ = base64.StdEncoding.DecodeString(v)
	}
	return result
}

// provenanceRow is the flattened representation of types.Provenance stored
// in the provenance table; exactly one of its path-ish fields is set
// depending on Type.
type provenanceRow struct {
	Type        string
	Path        string
	RepoPath    string
	CommitHash  string
	ArchivePath string
}

func encodeProvenance(prov types.Provenance) (provenanceRow, error) {
	switch p := prov.(type) {
	case types.FileProvenance:
		return provenanceRow{Type: "file", Path: p.FilePath}, nil
	case types.GitProvenance:
		row := provenanceRow{Type: "git", Path: p.BlobPath, RepoPath: p.RepoPath}
		if p.Commit != nil {
			row.CommitHash = p.Commit.CommitID
		}
		return row, nil
	case types.ArchiveProvenance:
		return provenanceRow{Type: "archive", ArchivePath: p.ArchivePath, Path: p.MemberPath}, nil
	case types.ExtendedProvenance:
		payload, _ := json.Marshal(p.Payload)
		return provenanceRow{Type: "extended", Path: string(payload)}, nil
	default:
		return provenanceRow{}, fmt.Errorf("unsupported provenance type %T", prov)
	}
}

func decodeProvenance(row provenanceRow) types.Provenance {
	switch row.Type {
	case "file":
		return types.FileProvenance{FilePath: row.Path}
	case "git":
		prov := types.GitProvenance{RepoPath: row.RepoPath, BlobPath: row.Path}
		if row.CommitHash != "" {
			prov.Commit = &types.CommitMetadata{CommitID: row.CommitHash}
		}
		return prov
	case "archive":
		return types.ArchiveProvenance{ArchivePath: row.ArchivePath, MemberPath: row.Path}
	case "extended":
		var payload map[string]interface{}
		json.Unmarshal([]byte(row.Path), &payload)
		return types.ExtendedProvenance{Payload: payload}
	default:
		return nil
	}
}
