package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/helicase/mdq/admission"
	"github.com/helicase/mdq/job"
	"github.com/helicase/mdq/policy"
)

// jobFile is the YAML format of a job description:
//
//	name: membrane-eq
//	cores: 48
//	memory_gb: 96
//	walltime: "24:00:00"
//	partition: general
//	qos: normal          # optional; suggested from policy when omitted
//	sim_config:
//	  engine: gromacs
//	  input: system.tpr
type jobFile struct {
	Name      string                 `yaml:"name"`
	Cores     int                    `yaml:"cores"`
	MemoryGB  float64                `yaml:"memory_gb"`
	Walltime  string                 `yaml:"walltime"`
	Partition string                 `yaml:"partition"`
	Qos       string                 `yaml:"qos"`
	SimConfig map[string]interface{} `yaml:"sim_config"`
}

// loadJobFile parses a job YAML file into a resource request plus the
// opaque simulation payload. A missing qos is filled in from the policy
// suggestion so most job files never need to name one.
func loadJobFile(path string, catalog *policy.Catalog) (name string, req job.ResourceRequest, simConfig json.RawMessage, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", req, nil, fmt.Errorf("failed to read job file: %w", err)
	}

	var jf jobFile
	if err := yaml.Unmarshal(data, &jf); err != nil {
		return "", req, nil, fmt.Errorf("failed to parse job file %s: %w", path, err)
	}

	walltime, err := job.ParseWalltime(jf.Walltime)
	if err != nil {
		return "", req, nil, fmt.Errorf("bad walltime in %s: %w", path, err)
	}

	req = job.ResourceRequest{
		Cores:     jf.Cores,
		MemoryGB:  jf.MemoryGB,
		Walltime:  walltime,
		Partition: jf.Partition,
		Qos:       jf.Qos,
	}
	if req.Qos == "" {
		req.Qos = admission.SuggestQos(req.WalltimeHours(), req.Partition, catalog)
	}

	if jf.SimConfig != nil {
		simConfig, err = json.Marshal(jf.SimConfig)
		if err != nil {
			return "", req, nil, fmt.Errorf("failed to encode sim_config: %w", err)
		}
	}
	return jf.Name, req, simConfig, nil
}
