/*
 * Licensed to the Apache Software Foundation (ASF) under one or more
 * contributor license agreements.  See the NOTICE file distributed with
 * this work for additional information regarding copyright ownership.
 * The ASF licenses this file to You under the Apache License, Version 2.0
 * (the "License"); you may not use this file except in compliance with
 * the License.  You may obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package procfile

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// LoadEnv reads a dotenv file into a map. A missing file is not an
// error: Procfile deployments commonly run without one.
// LoadEnv 将 dotenv 文件读取为 map。文件不存在不算错误：
// Procfile 部署经常不带 .env 文件运行。
func LoadEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return map[string]string{}, nil
	}

	env, err := godotenv.Read(path)
	if err != nil {
		return nil, fmt.Errorf("procfile: read env file %s: %w", path, err)
	}
	return env, nil
}

// MergeEnv layers overrides on top of base without mutating either.
// MergeEnv 在不修改两者的前提下将 overrides 叠加到 base 之上。
func MergeEnv(base, overrides map[string]string) map[string]string {
	merged := make(map[string]string, len(base)+len(overrides))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}

// ExpandCommand expands $VAR and ${VAR} references in a command string
// against env. Unknown variables expand to the empty string, matching
// shell behavior.
// ExpandCommand 根据 env 展开命令字符串中的 $VAR 和 ${VAR} 引用。
// 未知变量展开为空字符串，与 shell 行为一致。
func ExpandCommand(command string, env map[string]string) string {
	return os.Expand(command, func(key string) string {
		return env[key]
	})
}
