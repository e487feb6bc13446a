package pipelines

import (
	"encoding/binary"
	"os"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v2/core1_0"
)

// LoadShaderModule reads a SPIR-V binary from path and wraps it in a shader
// module. The module is a consumed input to pipeline creation and should be
// destroyed once the pipeline that uses it has been built.
func LoadShaderModule(device core1_0.Device, path string) (core1_0.ShaderModule, error) {
	shaderBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open shader file %s", path)
	}

	code, err := bytesToBytecode(shaderBytes)
	if err != nil {
		return nil, errors.Wrapf(err, "shader file %s is not valid SPIR-V", path)
	}

	module, _, err := device.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{
		Code: code,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create a shader module from %s", path)
	}

	return module, nil
}

func bytesToBytecode(b []byte) ([]uint32, error) {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, errors.Newf("bytecode size %d is not a positive multiple of 4", len(b))
	}

	code := make([]uint32, len(b)/4)
	for i := range code {
		code[i] = binary.LittleEndian.Uint32(b[i*4:])
	}

	return code, nil
}
