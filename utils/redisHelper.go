package utils

import (
	"reflect"

	"bitbucket.org/mmdatafocus/estimator_backend/config"
)

func GetTypeName[T any]() string {
	var v T
	typeOfT := reflect.TypeOf(v)
	return typeOfT.Name()
}

// store object list
func StoreRedisList[T any](obj any) error {
	key := GetTypeName[T]() + "List"
	return config.SetRedisObject(key, &obj, 0)
}

// get list from redis
// returns nil if it does not exist
func RetrieveRedisList[T any]() ([]*T, error) {
	var result []*T
	key := GetTypeName[T]() + "List"
	exists, err := config.GetRedisObject(key, &result)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return result, nil
}

// invalidate a cached list after writes
func RemoveRedisList[T any]() error {
	return config.RemoveRedisKey(GetTypeName[T]() + "List")
}
