package builder

import _ "embed"

// DefaultManifest is used when the project directory has no Build.toml. It
// describes SummerGame: the ImGui bridge, the reflected D3D11 core executable
// and the reflected game DLL.
//
//go:embed summer.toml
var DefaultManifest []byte
