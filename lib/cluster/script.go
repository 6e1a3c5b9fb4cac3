// Copyright (C) The StormDB Authors. All rights reserved.
//
// SPDX-License-Identifier: MIT

package cluster

import (
	"bytes"
	"text/template"
)

// The submission script consumed by qsub. Directive lines use the
// engine's "#$" pragma prefix. OMP_NUM_THREADS is exported so that
// OpenMP-style tools honor the slot count the scheduler granted.
var scriptTemplate = template.Must(template.New("qsub").Parse(`#$ -S /bin/bash
# Pass on all environment variables
#$ -V
# Working directory
{{.WorkDirFlag}}
#$ -N {{.JobName}}
#$ -o {{.LogPrefix}}_$JOB_ID.qsub
# Merge stdout and stderr
#$ -j y
#$ -q {{.Queue}}
{{- if .ParallelEnvFlag}}
{{.ParallelEnvFlag}}
{{- end}}

# Make sure the process uses the requested number of threads!
export OMP_NUM_THREADS=$NSLOTS

echo "Executing following command on $NSLOTS threads:"
echo -e '{{.Command}}'

{{.Command}}

echo "Done executing"
`))

type scriptFields struct {
	WorkDirFlag     string
	JobName         string
	LogPrefix       string
	Queue           string
	ParallelEnvFlag string
	Command         string
}

func renderScript(f scriptFields) (string, error) {
	var buf bytes.Buffer
	if err := scriptTemplate.Execute(&buf, f); err != nil {
		return "", err
	}
	return buf.String(), nil
}
